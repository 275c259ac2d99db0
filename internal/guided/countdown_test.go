// ABOUTME: Tests for the rest countdown.
// ABOUTME: Drives the fake clock second by second and checks ticks and cancellation.
package guided

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks []int
}

func (r *tickRecorder) record(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, n)
}

func (r *tickRecorder) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...)
}

func advanceSeconds(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		cancel()
		clock.Advance(time.Second)
	}
}

func TestCountdownRunsToZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	done := make(chan bool, 1)

	go func() {
		done <- NewCountdown(clock).Run(context.Background(), 90, rec.record)
	}()
	advanceSeconds(t, clock, 90)

	select {
	case expired := <-done:
		assert.True(t, expired)
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not finish")
	}

	ticks := rec.get()
	require.Len(t, ticks, 90)
	assert.Equal(t, 90, ticks[0])
	assert.Equal(t, 1, ticks[89])
}

func TestCountdownCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	done := make(chan bool, 1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		done <- NewCountdown(clock).Run(ctx, 90, rec.record)
	}()
	advanceSeconds(t, clock, 45)

	// Wait for tick 45 to be registered before cancelling.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case expired := <-done:
		assert.False(t, expired)
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not stop")
	}

	clock.Advance(time.Minute)
	ticks := rec.get()
	require.Len(t, ticks, 46)
	assert.Equal(t, 45, ticks[len(ticks)-1])
}

func TestCountdownZeroSeconds(t *testing.T) {
	rec := &tickRecorder{}
	assert.True(t, NewCountdown(clockwork.NewFakeClock()).Run(context.Background(), 0, rec.record))
	assert.Empty(t, rec.get())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, NewCountdown(clockwork.NewFakeClock()).Run(ctx, 0, rec.record))
}
