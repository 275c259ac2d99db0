// ABOUTME: Cancellable one-second countdown driven by an injectable clock.
// ABOUTME: Ticks N..1 and reports expiry only if never cancelled.
package guided

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown ticks once per Interval.
type Countdown struct {
	Clock    clockwork.Clock
	Interval time.Duration
}

// NewCountdown returns a one-second countdown on clock.
func NewCountdown(clock clockwork.Clock) Countdown {
	return Countdown{Clock: clock, Interval: time.Second}
}

// Run calls onTick with seconds, seconds-1, ..., 1, waiting one interval
// after each, and returns true once the last interval elapses. It returns
// false without further ticks as soon as ctx is cancelled.
func (c Countdown) Run(ctx context.Context, seconds int, onTick func(remaining int)) bool {
	for remaining := seconds; remaining > 0; remaining-- {
		if ctx.Err() != nil {
			return false
		}
		onTick(remaining)

		select {
		case <-ctx.Done():
			return false
		case <-c.Clock.After(c.Interval):
		}
	}
	return ctx.Err() == nil
}
