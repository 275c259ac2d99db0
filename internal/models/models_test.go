// ABOUTME: Tests for session, set log, observation, and summary models.
// ABOUTME: Validates constructors and builder methods.
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewSession(t *testing.T) {
	now := time.Date(2026, 2, 10, 7, 0, 0, 0, time.FixedZone("x", 3600))
	s := NewSession("2026-02-10", "Europe/Madrid", "Push day", now)

	if s.ID == uuid.Nil {
		t.Error("expected UUID to be set")
	}
	if !s.Active() {
		t.Error("new session should be active")
	}
	if s.StartedAt.Location() != time.UTC {
		t.Errorf("StartedAt location = %v, want UTC", s.StartedAt.Location())
	}
	if got := s.Duration(now.Add(30 * time.Minute)); got != 30*time.Minute {
		t.Errorf("Duration = %v, want 30m", got)
	}

	end := now.Add(45 * time.Minute)
	s.EndedAt = &end
	if s.Active() {
		t.Error("ended session should not be active")
	}
	if got := s.Duration(now.Add(2 * time.Hour)); got != 45*time.Minute {
		t.Errorf("Duration = %v, want 45m", got)
	}
}

func TestNewSetLogWithActuals(t *testing.T) {
	reps := 7
	kg := 62.5
	l := NewSetLog(uuid.New(), "bench", "Bench Press", 1, 8, 60, time.Now()).
		WithActuals(&reps, &kg).
		WithRest(90)

	if l.SetIndex != 1 || l.TargetReps != 8 || l.TargetWeightKg != 60 {
		t.Errorf("unexpected snapshot: %+v", l)
	}
	if l.ActualReps == nil || *l.ActualReps != 7 {
		t.Error("expected ActualReps to be 7")
	}
	if l.RestSecUsed == nil || *l.RestSecUsed != 90 {
		t.Error("expected RestSecUsed to be 90")
	}
}

func TestNewObservation(t *testing.T) {
	tests := []struct {
		name    string
		note    string
		want    string
		wantNil bool
	}{
		{"empty", "", "", true},
		{"whitespace", "  \t\n", "", true},
		{"text", "RPE 8", "RPE 8", false},
		{"trimmed", "  felt heavy  ", "felt heavy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewObservation(uuid.New(), "bench", 0, tt.note, time.Now())
			if tt.wantNil {
				if o != nil {
					t.Errorf("expected nil observation, got %+v", o)
				}
				return
			}
			if o == nil {
				t.Fatal("expected observation")
			}
			if o.Text != tt.want {
				t.Errorf("Text = %q, want %q", o.Text, tt.want)
			}
		})
	}
}

func TestCloseReason(t *testing.T) {
	if !CloseAutoRollover.IsValid() || !CloseManual.IsValid() {
		t.Error("known reasons should be valid")
	}
	if CloseReason("whatever").IsValid() {
		t.Error("unknown reason should be invalid")
	}
}

func TestNewDailySummaryDefaults(t *testing.T) {
	d := NewDailySummary("2026-02-09", "UTC", CloseAutoRollover, time.Now())

	if d.TrainingCompleted {
		t.Error("TrainingCompleted should default to false")
	}
	if d.PlansCompleted != nil || d.Calories != nil || d.WeightKg != nil {
		t.Error("optional fields should default to nil")
	}

	d.WithCalories(2100).WithWeight(81.2)
	if d.Calories == nil || *d.Calories != 2100 {
		t.Error("expected Calories to be 2100")
	}
	if d.WeightKg == nil || *d.WeightKg != 81.2 {
		t.Error("expected WeightKg to be 81.2")
	}
}
