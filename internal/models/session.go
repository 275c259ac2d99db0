// ABOUTME: Session, SetLog, and Observation records for guided workouts.
// ABOUTME: SetLogs snapshot plan targets so history survives plan changes.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one guided workout, bound to the day key it started on.
type Session struct {
	ID         uuid.UUID  `json:"id" yaml:"id"`
	DayKey     string     `json:"day_key" yaml:"day_key"`
	TimezoneID string     `json:"timezone_id" yaml:"timezone_id"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Title      string     `json:"title" yaml:"title"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`

	// Populated when exporting a full session.
	SetLogs      []SetLog      `json:"set_logs,omitempty" yaml:"set_logs,omitempty"`
	Observations []Observation `json:"observations,omitempty" yaml:"observations,omitempty"`
}

// NewSession creates an active session started at now.
func NewSession(dayKey, timezoneID, title string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:         uuid.New(),
		DayKey:     dayKey,
		TimezoneID: timezoneID,
		StartedAt:  now,
		Title:      title,
		CreatedAt:  now,
	}
}

// Active reports whether the session has not been finalized.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Duration returns the elapsed time, up to now for active sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// SetLog records one completed set.
type SetLog struct {
	ID             uuid.UUID `json:"id" yaml:"id"`
	SessionID      uuid.UUID `json:"session_id" yaml:"session_id"`
	ExerciseID     string    `json:"exercise_id" yaml:"exercise_id"`
	ExerciseName   string    `json:"exercise_name" yaml:"exercise_name"`
	SetIndex       int       `json:"set_index" yaml:"set_index"`
	TargetReps     int       `json:"target_reps" yaml:"target_reps"`
	TargetWeightKg float64   `json:"target_weight_kg" yaml:"target_weight_kg"`
	ActualReps     *int      `json:"actual_reps,omitempty" yaml:"actual_reps,omitempty"`
	ActualWeightKg *float64  `json:"actual_weight_kg,omitempty" yaml:"actual_weight_kg,omitempty"`
	CompletedAt    time.Time `json:"completed_at" yaml:"completed_at"`
	RestSecUsed    *int      `json:"rest_sec_used,omitempty" yaml:"rest_sec_used,omitempty"`
}

// NewSetLog creates a SetLog completed at now.
func NewSetLog(sessionID uuid.UUID, exerciseID, exerciseName string, setIndex, targetReps int, targetWeightKg float64, now time.Time) *SetLog {
	return &SetLog{
		ID:             uuid.New(),
		SessionID:      sessionID,
		ExerciseID:     exerciseID,
		ExerciseName:   exerciseName,
		SetIndex:       setIndex,
		TargetReps:     targetReps,
		TargetWeightKg: targetWeightKg,
		CompletedAt:    now.UTC(),
	}
}

// WithActuals records what was actually lifted.
func (l *SetLog) WithActuals(reps *int, weightKg *float64) *SetLog {
	l.ActualReps = reps
	l.ActualWeightKg = weightKg
	return l
}

// WithRest records the rest prescribed after this set.
func (l *SetLog) WithRest(sec int) *SetLog {
	l.RestSecUsed = &sec
	return l
}

// Observation is a free-text note attached to a completed set.
type Observation struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	SessionID  uuid.UUID `json:"session_id" yaml:"session_id"`
	ExerciseID string    `json:"exercise_id" yaml:"exercise_id"`
	SetIndex   int       `json:"set_index" yaml:"set_index"`
	Text       string    `json:"text" yaml:"text"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// NewObservation returns nil when note is blank, otherwise an Observation
// holding the trimmed note.
func NewObservation(sessionID uuid.UUID, exerciseID string, setIndex int, note string, now time.Time) *Observation {
	text := strings.TrimSpace(note)
	if text == "" {
		return nil
	}
	return &Observation{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ExerciseID: exerciseID,
		SetIndex:   setIndex,
		Text:       text,
		CreatedAt:  now.UTC(),
	}
}
