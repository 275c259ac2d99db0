// ABOUTME: Guided workout engine run as a single actor goroutine.
// ABOUTME: Every transition is a command; persistence is awaited before state advances.
package guided

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/plan"
	"github.com/harperreed/aiform/internal/storage"
	"github.com/harperreed/aiform/internal/zone"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoActiveSession is returned by Finish while idle.
	ErrNoActiveSession = errors.New("no active session")
	// ErrEngineStopped is returned after Stop.
	ErrEngineStopped = errors.New("engine stopped")
)

// Recorder is the subset of the repository the engine writes through.
type Recorder interface {
	CreateSession(ctx context.Context, dayKey, timezoneID, title string, now time.Time) (*models.Session, error)
	LogSet(ctx context.Context, entry storage.SetEntry) (*models.SetLog, *models.Observation, error)
	FinalizeSession(ctx context.Context, id uuid.UUID, now time.Time) error
}

// TimezoneSource supplies the zone used to stamp a new session's day key.
type TimezoneSource interface {
	SelectedTimezone(ctx context.Context) (string, error)
}

// Notifier is told when a rest countdown reaches zero.
type Notifier interface {
	RestComplete(s Snapshot)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Snapshot)

func (f NotifierFunc) RestComplete(s Snapshot) { f(s) }

// Observer receives every published snapshot on the engine goroutine.
// It must not block and must not call back into the engine.
type Observer func(Snapshot)

// Actuals are optional measured values for a set.
type Actuals struct {
	Reps     *int
	WeightKg *float64
}

// --- Command types ---

type engineCmd interface{ engineCmd() }

type result struct {
	snap Snapshot
	err  error
}

type cmdStart struct {
	ctx     context.Context
	plan    *plan.DayPlan
	replyCh chan result
}

func (cmdStart) engineCmd() {}

type cmdMarkSetDone struct {
	replyCh chan result
}

func (cmdMarkSetDone) engineCmd() {}

type cmdSubmitObservation struct {
	ctx     context.Context
	note    string
	actuals Actuals
	replyCh chan result
}

func (cmdSubmitObservation) engineCmd() {}

type cmdSkipRest struct {
	ctx     context.Context
	replyCh chan result
}

func (cmdSkipRest) engineCmd() {}

type cmdFinish struct {
	ctx     context.Context
	replyCh chan result
}

func (cmdFinish) engineCmd() {}

type cmdGetState struct {
	replyCh chan Snapshot
}

func (cmdGetState) engineCmd() {}

type cmdRestTick struct {
	token     uint64
	remaining int
}

func (cmdRestTick) engineCmd() {}

type cmdRestExpired struct {
	token uint64
}

func (cmdRestExpired) engineCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) engineCmd() {}

// --- Engine ---

type activeSession struct {
	id   uuid.UUID
	plan *plan.DayPlan
}

// Engine drives one guided session at a time.
type Engine struct {
	cmdCh     chan engineCmd
	stopCh    chan struct{}
	started   atomic.Bool
	stopOnce  sync.Once
	rec       Recorder
	zones     TimezoneSource
	clock     clockwork.Clock
	countdown Countdown
	notifier  Notifier
	observers []Observer
	log       zerolog.Logger

	// Owned by the actor goroutine.
	state      State
	session    *activeSession
	restToken  uint64
	restCancel context.CancelFunc
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and rest countdowns.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier sets the rest-complete notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver registers an observer. Must be passed before Start.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an idle engine. Call Start before sending events.
func NewEngine(rec Recorder, zones TimezoneSource, opts ...Option) *Engine {
	e := &Engine{
		cmdCh:    make(chan engineCmd, 64),
		stopCh:   make(chan struct{}),
		rec:      rec,
		zones:    zones,
		clock:    clockwork.NewRealClock(),
		notifier: NotifierFunc(func(Snapshot) {}),
		log:      zerolog.Nop(),
		state:    Idle{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.countdown = NewCountdown(e.clock)
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	return e
}

// Start launches the actor goroutine.
func (e *Engine) Start() {
	if e.started.CompareAndSwap(false, true) {
		go e.run()
	}
}

// Stop cancels any countdown and stops the actor. An active session is left
// unfinalized.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if !e.started.Load() {
			e.baseCancel()
			close(e.stopCh)
			return
		}
		done := make(chan struct{})
		e.cmdCh <- cmdStop{doneCh: done}
		<-done
	})
}

// StartSession creates a session for p and moves to InSet(0,0).
func (e *Engine) StartSession(ctx context.Context, p *plan.DayPlan) (Snapshot, error) {
	return e.call(ctx, func(reply chan result) engineCmd {
		return cmdStart{ctx: ctx, plan: p, replyCh: reply}
	})
}

// MarkSetDone moves from InSet to AwaitingObservation.
func (e *Engine) MarkSetDone(ctx context.Context) (Snapshot, error) {
	return e.call(ctx, func(reply chan result) engineCmd {
		return cmdMarkSetDone{replyCh: reply}
	})
}

// SubmitObservation logs the current set with an optional note and starts
// the rest countdown.
func (e *Engine) SubmitObservation(ctx context.Context, note string, actuals Actuals) (Snapshot, error) {
	return e.call(ctx, func(reply chan result) engineCmd {
		return cmdSubmitObservation{ctx: ctx, note: note, actuals: actuals, replyCh: reply}
	})
}

// SkipRest cancels the running countdown and advances immediately.
func (e *Engine) SkipRest(ctx context.Context) (Snapshot, error) {
	return e.call(ctx, func(reply chan result) engineCmd {
		return cmdSkipRest{ctx: ctx, replyCh: reply}
	})
}

// Finish finalizes the active session from any non-idle state. The returned
// snapshot holds the Finished state; the engine is idle afterwards.
func (e *Engine) Finish(ctx context.Context) (Snapshot, error) {
	return e.call(ctx, func(reply chan result) engineCmd {
		return cmdFinish{ctx: ctx, replyCh: reply}
	})
}

// State returns the current snapshot.
func (e *Engine) State(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := e.send(ctx, cmdGetState{replyCh: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-e.stopCh:
		return Snapshot{}, ErrEngineStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (e *Engine) call(ctx context.Context, build func(chan result) engineCmd) (Snapshot, error) {
	reply := make(chan result, 1)
	if err := e.send(ctx, build(reply)); err != nil {
		return Snapshot{}, err
	}
	select {
	case r := <-reply:
		return r.snap, r.err
	case <-e.stopCh:
		return Snapshot{}, ErrEngineStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (e *Engine) send(ctx context.Context, cmd engineCmd) error {
	select {
	case <-e.stopCh:
		return ErrEngineStopped
	default:
	}
	select {
	case e.cmdCh <- cmd:
		return nil
	case <-e.stopCh:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	for cmd := range e.cmdCh {
		switch c := cmd.(type) {
		case cmdStart:
			c.replyCh <- e.handleStart(c.ctx, c.plan)

		case cmdMarkSetDone:
			c.replyCh <- e.handleMarkSetDone()

		case cmdSubmitObservation:
			c.replyCh <- e.handleSubmit(c.ctx, c.note, c.actuals)

		case cmdSkipRest:
			c.replyCh <- e.handleSkipRest(c.ctx)

		case cmdFinish:
			c.replyCh <- e.handleFinish(c.ctx)

		case cmdGetState:
			c.replyCh <- e.snapshot(nil)

		case cmdRestTick:
			e.handleTick(c.token, c.remaining)

		case cmdRestExpired:
			e.handleExpired(c.token)

		case cmdStop:
			e.cancelRest()
			e.baseCancel()
			close(e.stopCh)
			close(c.doneCh)
			return
		}
	}
}

func (e *Engine) snapshot(err error) Snapshot {
	s := Snapshot{State: e.state, Err: err}
	if e.session != nil {
		s.SessionID = e.session.id
		s.Plan = e.session.plan
	}
	return s
}

func (e *Engine) publish(st State, err error) Snapshot {
	e.state = st
	snap := e.snapshot(err)
	for _, o := range e.observers {
		o(snap)
	}
	return snap
}

func (e *Engine) invalid(event string) result {
	return result{
		snap: e.snapshot(nil),
		err:  fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, e.state),
	}
}

func (e *Engine) handleStart(ctx context.Context, p *plan.DayPlan) result {
	if _, idle := e.state.(Idle); !idle {
		return e.invalid("start")
	}
	if err := p.Validate(); err != nil {
		return result{snap: e.snapshot(nil), err: err}
	}

	tz, err := e.zones.SelectedTimezone(ctx)
	if err != nil {
		return result{snap: e.snapshot(nil), err: err}
	}
	now := e.clock.Now()
	dayKey, err := zone.DayKey(now, tz)
	if err != nil {
		return result{snap: e.snapshot(nil), err: err}
	}

	title := p.Workout.Title
	if title == "" {
		title = "Workout"
	}
	s, err := e.rec.CreateSession(ctx, dayKey, tz, title, now)
	if err != nil {
		return result{snap: e.snapshot(nil), err: err}
	}

	e.session = &activeSession{id: s.ID, plan: p}
	e.log.Info().Str("session_id", s.ID.String()).Str("day_key", dayKey).Msg("session started")
	return result{snap: e.publish(InSet{ExerciseIdx: 0, SetIdx: 0}, nil)}
}

func (e *Engine) handleMarkSetDone() result {
	st, ok := e.state.(InSet)
	if !ok {
		return e.invalid("mark set done")
	}
	return result{snap: e.publish(AwaitingObservation{ExerciseIdx: st.ExerciseIdx, SetIdx: st.SetIdx}, nil)}
}

func (e *Engine) handleSubmit(ctx context.Context, note string, actuals Actuals) result {
	st, ok := e.state.(AwaitingObservation)
	if !ok {
		return e.invalid("submit observation")
	}

	ex := e.session.plan.Workout.Exercises[st.ExerciseIdx]
	_, _, err := e.rec.LogSet(ctx, storage.SetEntry{
		SessionID:      e.session.id,
		Exercise:       ex,
		SetIndex:       st.SetIdx,
		Note:           note,
		ActualReps:     actuals.Reps,
		ActualWeightKg: actuals.WeightKg,
		CompletedAt:    e.clock.Now(),
	})
	if err != nil {
		return result{snap: e.snapshot(nil), err: err}
	}

	rest := ex.RestBetweenSetsSec
	snap := e.publish(Resting{ExerciseIdx: st.ExerciseIdx, SetIdx: st.SetIdx, RemainingSec: rest}, nil)
	if rest <= 0 {
		next, err := e.completeRest(ctx)
		if err != nil {
			return result{snap: e.snapshot(err), err: err}
		}
		return result{snap: next}
	}
	e.startRest(rest)
	return result{snap: snap}
}

func (e *Engine) handleSkipRest(ctx context.Context) result {
	if _, ok := e.state.(Resting); !ok {
		return e.invalid("skip rest")
	}
	e.cancelRest()
	next, err := e.advance(ctx)
	if err != nil {
		return result{snap: e.snapshot(err), err: err}
	}
	return result{snap: next}
}

func (e *Engine) handleFinish(ctx context.Context) result {
	if e.session == nil {
		return result{snap: e.snapshot(nil), err: ErrNoActiveSession}
	}
	snap, err := e.finish(ctx)
	return result{snap: snap, err: err}
}

func (e *Engine) handleTick(token uint64, remaining int) {
	st, ok := e.state.(Resting)
	if !ok || token != e.restToken || e.restCancel == nil {
		return
	}
	if st.RemainingSec == remaining {
		return
	}
	st.RemainingSec = remaining
	e.publish(st, nil)
}

func (e *Engine) handleExpired(token uint64) {
	if _, ok := e.state.(Resting); !ok || token != e.restToken || e.restCancel == nil {
		return
	}
	e.restCancel()
	e.restCancel = nil
	// Already logged and published to observers; nobody is waiting on a reply.
	_, _ = e.completeRest(e.baseCtx)
}

// completeRest publishes Resting at zero, notifies, and advances. A failed
// advance leaves the engine resting at zero, reports the error to observers,
// and returns it.
func (e *Engine) completeRest(ctx context.Context) (Snapshot, error) {
	st := e.state.(Resting)
	st.RemainingSec = 0
	snap := e.publish(st, nil)
	e.notifier.RestComplete(snap)

	next, err := e.advance(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("session_id", snap.SessionID.String()).Msg("advance after rest failed")
		e.publish(st, err)
		return snap, err
	}
	return next, nil
}

// advance moves past a finished rest. The returned snapshot is the next set,
// or Finished when the plan is exhausted.
func (e *Engine) advance(ctx context.Context) (Snapshot, error) {
	st := e.state.(Resting)
	exercises := e.session.plan.Workout.Exercises

	switch {
	case st.SetIdx+1 < len(exercises[st.ExerciseIdx].Sets):
		return e.publish(InSet{ExerciseIdx: st.ExerciseIdx, SetIdx: st.SetIdx + 1}, nil), nil
	case st.ExerciseIdx+1 < len(exercises):
		return e.publish(InSet{ExerciseIdx: st.ExerciseIdx + 1, SetIdx: 0}, nil), nil
	default:
		return e.finish(ctx)
	}
}

func (e *Engine) finish(ctx context.Context) (Snapshot, error) {
	e.cancelRest()

	id := e.session.id
	err := e.rec.FinalizeSession(ctx, id, e.clock.Now())
	if err != nil && !errors.Is(err, storage.ErrAlreadyFinalized) {
		return e.snapshot(nil), err
	}

	finished := e.publish(Finished{SessionID: id}, nil)
	e.session = nil
	e.publish(Idle{}, nil)
	e.log.Info().Str("session_id", id.String()).Msg("session finished")
	return finished, nil
}

func (e *Engine) startRest(seconds int) {
	e.cancelRest()
	e.restToken++
	token := e.restToken
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.restCancel = cancel

	go func() {
		expired := e.countdown.Run(ctx, seconds, func(remaining int) {
			e.post(ctx, cmdRestTick{token: token, remaining: remaining})
		})
		if expired {
			e.post(ctx, cmdRestExpired{token: token})
		}
	}()
}

func (e *Engine) cancelRest() {
	if e.restCancel != nil {
		e.restCancel()
		e.restCancel = nil
	}
}

// post delivers a countdown command unless the countdown was cancelled.
func (e *Engine) post(ctx context.Context, cmd engineCmd) {
	select {
	case e.cmdCh <- cmd:
	case <-ctx.Done():
	case <-e.stopCh:
	}
}
