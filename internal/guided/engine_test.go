// ABOUTME: Tests for the guided engine state machine and rest countdown.
// ABOUTME: Uses a fake recorder and clockwork's fake clock; one test runs against SQLite.
package guided

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/plan"
	"github.com/harperreed/aiform/internal/prefs"
	"github.com/harperreed/aiform/internal/storage"
)

var engineNow = time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu          sync.Mutex
	sessions    []*models.Session
	entries     []storage.SetEntry
	finalized   []uuid.UUID
	logErr      error
	finalizeErr error
}

func (f *fakeRecorder) CreateSession(_ context.Context, dayKey, tz, title string, now time.Time) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.NewSession(dayKey, tz, title, now)
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeRecorder) LogSet(_ context.Context, entry storage.SetEntry) (*models.SetLog, *models.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return nil, nil, f.logErr
	}
	f.entries = append(f.entries, entry)
	return &models.SetLog{SessionID: entry.SessionID, SetIndex: entry.SetIndex}, nil, nil
}

func (f *fakeRecorder) FinalizeSession(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = append(f.finalized, id)
	return nil
}

func (f *fakeRecorder) setFinalizeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeErr = err
}

func (f *fakeRecorder) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeRecorder) finalizedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finalized)
}

type fixedZone string

func (z fixedZone) SelectedTimezone(context.Context) (string, error) { return string(z), nil }

// snapshotLog collects every published snapshot.
type snapshotLog struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (l *snapshotLog) observe(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) all() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.snaps...)
}

func (l *snapshotLog) restingRemaining() []int {
	var out []int
	for _, s := range l.all() {
		if r, ok := s.State.(Resting); ok {
			out = append(out, r.RemainingSec)
		}
	}
	return out
}

func testPlan(rest int) *plan.DayPlan {
	return &plan.DayPlan{
		Date:       "2026-02-10",
		TimezoneID: "UTC",
		Workout: plan.Workout{
			Title: "Push day",
			Exercises: []plan.Exercise{
				{
					ID: "bench", Name: "Bench Press", RestBetweenSetsSec: rest,
					Sets: []plan.ExerciseSet{{TargetReps: 8, TargetWeightKg: 60}, {TargetReps: 8, TargetWeightKg: 60}},
				},
				{
					ID: "dips", Name: "Dips", RestBetweenSetsSec: rest,
					Sets: []plan.ExerciseSet{{TargetReps: 12}},
				},
			},
		},
	}
}

type harness struct {
	eng      *Engine
	rec      *fakeRecorder
	clock    *clockwork.FakeClock
	log      *snapshotLog
	notified *callCounter
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *callCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:      &fakeRecorder{},
		clock:    clockwork.NewFakeClockAt(engineNow),
		log:      &snapshotLog{},
		notified: &callCounter{},
	}
	h.eng = NewEngine(h.rec, fixedZone("Asia/Tokyo"),
		WithClock(h.clock),
		WithObserver(h.log.observe),
		WithNotifier(NotifierFunc(func(Snapshot) { h.notified.inc() })),
	)
	h.eng.Start()
	t.Cleanup(h.eng.Stop)
	return h
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	s, err := h.eng.State(context.Background())
	require.NoError(t, err)
	return s.State
}

// tick waits for the countdown to block on the clock, then advances one second.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(time.Second)
}

func (h *harness) completeSet(t *testing.T, note string) Snapshot {
	t.Helper()
	ctx := context.Background()
	_, err := h.eng.MarkSetDone(ctx)
	require.NoError(t, err)
	snap, err := h.eng.SubmitObservation(ctx, note, Actuals{})
	require.NoError(t, err)
	return snap
}

func TestEngineProgressionWithoutRest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	snap, err := h.eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 0}, snap.State)
	assert.NotEqual(t, uuid.Nil, snap.SessionID)

	target, ok := snap.Target()
	require.True(t, ok)
	assert.Equal(t, 8, target.TargetReps)

	got, err := h.eng.MarkSetDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, AwaitingObservation{ExerciseIdx: 0, SetIdx: 0}, got.State)

	got, err = h.eng.SubmitObservation(ctx, "felt heavy", Actuals{})
	require.NoError(t, err)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 1}, got.State)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 1}, h.state(t))

	got = h.completeSet(t, "")
	assert.Equal(t, InSet{ExerciseIdx: 1, SetIdx: 0}, got.State)

	got = h.completeSet(t, "")
	_, finished := got.State.(Finished)
	assert.True(t, finished)
	assert.Equal(t, Idle{}, h.state(t))

	assert.Equal(t, 3, h.rec.entryCount())
	assert.Equal(t, 1, h.rec.finalizedCount())
	assert.Equal(t, 3, h.notified.get())

	snaps := h.log.all()
	require.GreaterOrEqual(t, len(snaps), 2)
	assert.Equal(t, Finished{SessionID: snap.SessionID}, snaps[len(snaps)-2].State)
	assert.Equal(t, Idle{}, snaps[len(snaps)-1].State)
}

func TestEngineStampsDayKeyInSelectedZone(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.StartSession(context.Background(), testPlan(0))
	require.NoError(t, err)

	require.Len(t, h.rec.sessions, 1)
	// 20:00Z on Feb 10 is already Feb 11 in Tokyo.
	assert.Equal(t, "2026-02-11", h.rec.sessions[0].DayKey)
	assert.Equal(t, "Asia/Tokyo", h.rec.sessions[0].TimezoneID)
	assert.Equal(t, "Push day", h.rec.sessions[0].Title)
}

func TestEngineSubmitRecordsEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)
	_, err = h.eng.MarkSetDone(ctx)
	require.NoError(t, err)

	reps := 7
	kg := 57.5
	_, err = h.eng.SubmitObservation(ctx, "  grindy last rep ", Actuals{Reps: &reps, WeightKg: &kg})
	require.NoError(t, err)

	require.Len(t, h.rec.entries, 1)
	e := h.rec.entries[0]
	assert.Equal(t, "bench", e.Exercise.ID)
	assert.Equal(t, 0, e.SetIndex)
	assert.Equal(t, "  grindy last rep ", e.Note)
	assert.Equal(t, 7, *e.ActualReps)
	assert.Equal(t, 57.5, *e.ActualWeightKg)
	assert.True(t, e.CompletedAt.Equal(engineNow))
}

func TestEngineRestCountdown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(3))
	require.NoError(t, err)
	snap := h.completeSet(t, "")
	assert.Equal(t, Resting{ExerciseIdx: 0, SetIdx: 0, RemainingSec: 3}, snap.State)

	for i := 0; i < 3; i++ {
		h.tick(t)
	}

	require.Eventually(t, func() bool {
		s, err := h.eng.State(ctx)
		return err == nil && s.State == InSet{ExerciseIdx: 0, SetIdx: 1}
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []int{3, 2, 1, 0}, h.log.restingRemaining())
	assert.Equal(t, 1, h.notified.get())
}

func TestEngineSkipRest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(90))
	require.NoError(t, err)
	h.completeSet(t, "")
	h.tick(t)

	snap, err := h.eng.SkipRest(ctx)
	require.NoError(t, err)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 1}, snap.State)

	// The cancelled countdown must not deliver anything further.
	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 1}, h.state(t))
	assert.Equal(t, 0, h.notified.get())
}

func TestEngineFinishDuringRestCancelsCountdown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(90))
	require.NoError(t, err)
	h.completeSet(t, "")
	for i := 0; i < 45; i++ {
		h.tick(t)
	}

	snap, err := h.eng.Finish(ctx)
	require.NoError(t, err)
	_, finished := snap.State.(Finished)
	assert.True(t, finished)
	assert.Equal(t, Idle{}, h.state(t))

	h.clock.Advance(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, Idle{}, h.state(t))
	assert.Equal(t, 0, h.notified.get())
	assert.Equal(t, 1, h.rec.finalizedCount())
	assert.Equal(t, 1, h.rec.entryCount())
}

func TestEngineIgnoresStaleExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(90))
	require.NoError(t, err)
	h.completeSet(t, "")

	h.eng.cmdCh <- cmdRestExpired{token: 999}
	h.eng.cmdCh <- cmdRestTick{token: 999, remaining: 1}

	st, ok := h.state(t).(Resting)
	require.True(t, ok)
	assert.Equal(t, 90, st.RemainingSec)
	assert.Equal(t, 0, h.notified.get())
}

func TestEngineLogFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)
	_, err = h.eng.MarkSetDone(ctx)
	require.NoError(t, err)

	h.rec.mu.Lock()
	h.rec.logErr = errors.New("disk full")
	h.rec.mu.Unlock()

	_, err = h.eng.SubmitObservation(ctx, "note", Actuals{})
	require.Error(t, err)
	assert.Equal(t, AwaitingObservation{ExerciseIdx: 0, SetIdx: 0}, h.state(t))

	h.rec.mu.Lock()
	h.rec.logErr = nil
	h.rec.mu.Unlock()

	_, err = h.eng.SubmitObservation(ctx, "note", Actuals{})
	require.NoError(t, err)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 1}, h.state(t))
}

func TestEngineFinalizeFailureAfterRest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p := testPlan(1)
	p.Workout.Exercises = p.Workout.Exercises[1:]
	_, err := h.eng.StartSession(ctx, p)
	require.NoError(t, err)

	h.rec.setFinalizeErr(errors.New("database is locked"))
	h.completeSet(t, "")
	h.tick(t)

	require.Eventually(t, func() bool {
		for _, s := range h.log.all() {
			if s.Err != nil {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Resting{ExerciseIdx: 0, SetIdx: 0, RemainingSec: 0}, h.state(t))

	h.rec.setFinalizeErr(nil)
	_, err = h.eng.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle{}, h.state(t))
	assert.Equal(t, 1, h.rec.finalizedCount())
}

func TestEngineFinalizeFailureWithoutRest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p := testPlan(0)
	p.Workout.Exercises = p.Workout.Exercises[1:]
	_, err := h.eng.StartSession(ctx, p)
	require.NoError(t, err)

	h.rec.setFinalizeErr(errors.New("disk full"))
	_, err = h.eng.MarkSetDone(ctx)
	require.NoError(t, err)

	snap, err := h.eng.SubmitObservation(ctx, "last one", Actuals{})
	require.Error(t, err)
	assert.Equal(t, Resting{ExerciseIdx: 0, SetIdx: 0, RemainingSec: 0}, snap.State)
	assert.Equal(t, err, snap.Err)
	assert.Equal(t, Resting{ExerciseIdx: 0, SetIdx: 0, RemainingSec: 0}, h.state(t))
	assert.Equal(t, 1, h.rec.entryCount())
	assert.Equal(t, 0, h.rec.finalizedCount())

	h.rec.setFinalizeErr(nil)
	snap, err = h.eng.Finish(ctx)
	require.NoError(t, err)
	_, finished := snap.State.(Finished)
	assert.True(t, finished)
	assert.Equal(t, Idle{}, h.state(t))
	assert.Equal(t, 1, h.rec.finalizedCount())
}

func TestEngineSkipFinalRestFinishes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p := testPlan(90)
	p.Workout.Exercises = p.Workout.Exercises[1:]
	_, err := h.eng.StartSession(ctx, p)
	require.NoError(t, err)
	h.completeSet(t, "")

	snap, err := h.eng.SkipRest(ctx)
	require.NoError(t, err)
	_, finished := snap.State.(Finished)
	assert.True(t, finished)
	assert.Equal(t, Idle{}, h.state(t))
	assert.Equal(t, 1, h.rec.finalizedCount())
}

func TestEngineFinishToleratesAlreadyFinalized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)

	h.rec.setFinalizeErr(storage.ErrAlreadyFinalized)
	snap, err := h.eng.Finish(ctx)
	require.NoError(t, err)
	_, finished := snap.State.(Finished)
	assert.True(t, finished)
	assert.Equal(t, Idle{}, h.state(t))
}

func TestEngineInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.MarkSetDone(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.eng.SubmitObservation(ctx, "", Actuals{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.eng.SkipRest(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.eng.Finish(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = h.eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)

	_, err = h.eng.StartSession(ctx, testPlan(0))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.eng.SubmitObservation(ctx, "", Actuals{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, InSet{ExerciseIdx: 0, SetIdx: 0}, h.state(t))
}

func TestEngineRejectsInvalidPlan(t *testing.T) {
	h := newHarness(t)

	p := testPlan(0)
	p.Workout.Exercises = nil
	_, err := h.eng.StartSession(context.Background(), p)
	assert.ErrorIs(t, err, plan.ErrInvalidPlan)
	assert.Empty(t, h.rec.sessions)
	assert.Equal(t, Idle{}, h.state(t))
}

func TestEngineStop(t *testing.T) {
	eng := NewEngine(&fakeRecorder{}, fixedZone("UTC"))
	eng.Start()
	eng.Stop()
	eng.Stop()

	_, err := eng.MarkSetDone(context.Background())
	assert.ErrorIs(t, err, ErrEngineStopped)

	unstarted := NewEngine(&fakeRecorder{}, fixedZone("UTC"))
	unstarted.Stop()
	_, err = unstarted.State(context.Background())
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngineWithSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	defer db.Close()

	zones := prefs.NewStore(prefs.NewMemoryKV()).WithHostZone(func() string { return "Europe/Madrid" })
	eng := NewEngine(db, zones, WithClock(clockwork.NewFakeClockAt(engineNow)))
	eng.Start()
	defer eng.Stop()

	start, err := eng.StartSession(ctx, testPlan(0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = eng.MarkSetDone(ctx)
		require.NoError(t, err)
		_, err = eng.SubmitObservation(ctx, "ok", Actuals{})
		require.NoError(t, err)
	}

	logs, err := db.SetLogsBySession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	obs, err := db.ObservationsBySession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Len(t, obs, 3)

	s, err := db.GetSession(ctx, start.SessionID.String())
	require.NoError(t, err)
	assert.NotNil(t, s.EndedAt)
	assert.Equal(t, "2026-02-10", s.DayKey)
}
