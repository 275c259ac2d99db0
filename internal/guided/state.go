// ABOUTME: Guided session states as a closed set of variants.
// ABOUTME: Snapshots pair the current state with the active session and plan.
package guided

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/harperreed/aiform/internal/plan"
)

// State is one of Idle, InSet, AwaitingObservation, Resting, or Finished.
type State interface {
	fmt.Stringer
	isState()
}

// Idle means no session is active.
type Idle struct{}

// InSet means the user is performing the set at the given position.
type InSet struct {
	ExerciseIdx int
	SetIdx      int
}

// AwaitingObservation means the set is done and a note may be submitted.
type AwaitingObservation struct {
	ExerciseIdx int
	SetIdx      int
}

// Resting means the set was logged and the rest countdown is running.
type Resting struct {
	ExerciseIdx  int
	SetIdx       int
	RemainingSec int
}

// Finished is published once when a session ends, just before Idle.
type Finished struct {
	SessionID uuid.UUID
}

func (Idle) isState()                {}
func (InSet) isState()               {}
func (AwaitingObservation) isState() {}
func (Resting) isState()             {}
func (Finished) isState()            {}

func (Idle) String() string { return "idle" }

func (s InSet) String() string {
	return fmt.Sprintf("in_set(%d,%d)", s.ExerciseIdx, s.SetIdx)
}

func (s AwaitingObservation) String() string {
	return fmt.Sprintf("awaiting_observation(%d,%d)", s.ExerciseIdx, s.SetIdx)
}

func (s Resting) String() string {
	return fmt.Sprintf("resting(%d,%d,%ds)", s.ExerciseIdx, s.SetIdx, s.RemainingSec)
}

func (s Finished) String() string {
	return "finished(" + s.SessionID.String() + ")"
}

// Position returns the exercise and set indices of a positioned state.
func Position(s State) (exerciseIdx, setIdx int, ok bool) {
	switch v := s.(type) {
	case InSet:
		return v.ExerciseIdx, v.SetIdx, true
	case AwaitingObservation:
		return v.ExerciseIdx, v.SetIdx, true
	case Resting:
		return v.ExerciseIdx, v.SetIdx, true
	}
	return 0, 0, false
}

// Snapshot is what observers and callers see after each transition.
type Snapshot struct {
	State     State
	SessionID uuid.UUID
	Plan      *plan.DayPlan
	// Err is set when a timer-driven transition could not be persisted.
	Err error
}

// Exercise returns the exercise at the snapshot's position.
func (s Snapshot) Exercise() (plan.Exercise, bool) {
	e, _, ok := Position(s.State)
	if !ok || s.Plan == nil || e >= len(s.Plan.Workout.Exercises) {
		return plan.Exercise{}, false
	}
	return s.Plan.Workout.Exercises[e], true
}

// Target returns the prescribed set at the snapshot's position.
func (s Snapshot) Target() (plan.ExerciseSet, bool) {
	ex, ok := s.Exercise()
	if !ok {
		return plan.ExerciseSet{}, false
	}
	_, i, _ := Position(s.State)
	if i >= len(ex.Sets) {
		return plan.ExerciseSet{}, false
	}
	return ex.Sets[i], true
}
