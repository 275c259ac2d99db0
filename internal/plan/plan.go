// ABOUTME: Daily plan payload types, parsing, and validation.
// ABOUTME: Plans arrive as JSON or YAML and must pass Validate before a session starts.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/aiform/internal/zone"
)

// SchemaVersion is the only payload version accepted.
const SchemaVersion = 1

// ErrInvalidPlan matches every plan validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// ValidationError describes why a payload was rejected.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plan: %s: %v", e.Reason, e.Err)
	}
	return "invalid plan: " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPlan }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Payload is the envelope produced by the plan generator.
type Payload struct {
	SchemaVersion  int       `json:"schemaVersion" yaml:"schemaVersion"`
	GeneratedAtUTC time.Time `json:"generatedAtUtc" yaml:"generatedAtUtc"`
	DayPlan        DayPlan   `json:"dayPlan" yaml:"dayPlan"`
}

// DayPlan is the workout planned for one calendar date.
type DayPlan struct {
	Date       string  `json:"date" yaml:"date"`
	TimezoneID string  `json:"timezoneId" yaml:"timezoneId"`
	Workout    Workout `json:"workout" yaml:"workout"`
}

// Workout is an ordered list of exercises.
type Workout struct {
	Title     string     `json:"title" yaml:"title"`
	Exercises []Exercise `json:"exercises" yaml:"exercises"`
}

// Exercise is a named movement with an ordered list of sets.
type Exercise struct {
	ID                   string        `json:"id" yaml:"id"`
	Name                 string        `json:"name" yaml:"name"`
	RestBetweenSetsSec   int           `json:"restBetweenSetsSec" yaml:"restBetweenSetsSec"`
	RestAfterExerciseSec int           `json:"restAfterExerciseSec" yaml:"restAfterExerciseSec"`
	Sets                 []ExerciseSet `json:"sets" yaml:"sets"`
}

// ExerciseSet holds the prescribed targets for one set.
type ExerciseSet struct {
	TargetReps     int     `json:"targetReps" yaml:"targetReps"`
	TargetWeightKg float64 `json:"targetWeightKg" yaml:"targetWeightKg"`
}

// TotalSets counts sets across all exercises.
func (w Workout) TotalSets() int {
	n := 0
	for _, ex := range w.Exercises {
		n += len(ex.Sets)
	}
	return n
}

// Validate checks the payload envelope and its day plan.
func (p *Payload) Validate() error {
	if p.SchemaVersion != SchemaVersion {
		return invalid("unsupported schemaVersion=%d", p.SchemaVersion)
	}
	return p.DayPlan.Validate()
}

// Validate checks that the plan can drive a guided session.
func (d *DayPlan) Validate() error {
	if d == nil {
		return invalid("missing day plan")
	}
	if d.TimezoneID != "" {
		if err := zone.Validate(d.TimezoneID); err != nil {
			return &ValidationError{Reason: "dayPlan.timezoneId", Err: err}
		}
	}
	if d.Date != "" {
		if _, err := zone.ParseDayKey(d.Date); err != nil {
			return &ValidationError{Reason: "dayPlan.date", Err: err}
		}
	}
	if len(d.Workout.Exercises) == 0 {
		return invalid("workout must include at least one exercise")
	}

	seen := make(map[string]bool, len(d.Workout.Exercises))
	for i, ex := range d.Workout.Exercises {
		if strings.TrimSpace(ex.ID) == "" {
			return invalid("exercise %d has no id", i)
		}
		if seen[ex.ID] {
			return invalid("duplicate exercise id %s", ex.ID)
		}
		seen[ex.ID] = true

		if len(ex.Sets) == 0 {
			return invalid("exercise %s requires at least one set", ex.ID)
		}
		if ex.RestBetweenSetsSec < 0 || ex.RestAfterExerciseSec < 0 {
			return invalid("exercise %s has negative rest", ex.ID)
		}
		for j, set := range ex.Sets {
			if set.TargetReps < 0 || set.TargetWeightKg < 0 {
				return invalid("exercise %s set %d has negative target", ex.ID, j)
			}
		}
	}
	return nil
}

// Parse decodes and validates a JSON payload. Unknown fields are ignored.
func Parse(data []byte) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, &ValidationError{Reason: "malformed payload", Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseYAML decodes and validates a YAML payload.
func ParseYAML(data []byte) (*Payload, error) {
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ValidationError{Reason: "malformed payload", Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads a payload from disk, choosing the decoder by extension.
func LoadFile(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}
