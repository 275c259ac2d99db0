// ABOUTME: Repository interface for workout session and day ledger storage.
// ABOUTME: Defines the persistence contract shared by the SQLite and Postgres backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/plan"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinalized is returned when finalizing a session that has ended.
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrDuplicateSet is returned when a set is logged twice for one session.
	ErrDuplicateSet = errors.New("set already logged")
	// ErrInvalidSetIndex is returned when a set index is outside the exercise.
	ErrInvalidSetIndex = errors.New("set index out of range")
	// ErrSetOutOfOrder is returned when earlier sets of the exercise are not logged yet.
	ErrSetOutOfOrder = errors.New("set logged out of order")
)

// Repository defines the storage interface for sessions and the day ledger.
type Repository interface {
	// Session operations
	CreateSession(ctx context.Context, dayKey, timezoneID, title string, now time.Time) (*models.Session, error)
	GetSession(ctx context.Context, idOrPrefix string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	FinalizeSession(ctx context.Context, id uuid.UUID, now time.Time) error
	DeleteSession(ctx context.Context, idOrPrefix string) error

	// Set operations
	LogSet(ctx context.Context, entry SetEntry) (*models.SetLog, *models.Observation, error)
	SetLogsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.SetLog, error)
	ObservationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Observation, error)

	// Day ledger operations
	CloseDayIfOpen(ctx context.Context, dayKey, timezoneID string, reason models.CloseReason, now time.Time) (bool, error)
	CloseDay(ctx context.Context, summary *models.DailySummary) (bool, error)
	IsDayClosed(ctx context.Context, dayKey string) (bool, error)
	GetDailySummary(ctx context.Context, dayKey string) (*models.DailySummary, error)
	ListDailySummaries(ctx context.Context, limit int) ([]*models.DailySummary, error)

	// Export/Import
	GetAllData(ctx context.Context) (*ExportData, error)
	ImportData(ctx context.Context, data *ExportData) error

	// Lifecycle
	Close() error
}

// SetEntry is everything needed to log one completed set.
type SetEntry struct {
	SessionID      uuid.UUID
	Exercise       plan.Exercise
	SetIndex       int
	Note           string
	ActualReps     *int
	ActualWeightKg *float64
	CompletedAt    time.Time
}

// records builds the SetLog (with snapshotted targets) and the optional
// Observation for the entry.
func (e SetEntry) records() (*models.SetLog, *models.Observation, error) {
	if e.SetIndex < 0 || e.SetIndex >= len(e.Exercise.Sets) {
		return nil, nil, fmt.Errorf("%w: exercise %s has %d sets, got index %d",
			ErrInvalidSetIndex, e.Exercise.ID, len(e.Exercise.Sets), e.SetIndex)
	}
	target := e.Exercise.Sets[e.SetIndex]

	log := models.NewSetLog(e.SessionID, e.Exercise.ID, e.Exercise.Name, e.SetIndex,
		target.TargetReps, target.TargetWeightKg, e.CompletedAt).
		WithActuals(e.ActualReps, e.ActualWeightKg).
		WithRest(e.Exercise.RestBetweenSetsSec)

	obs := models.NewObservation(e.SessionID, e.Exercise.ID, e.SetIndex, e.Note, e.CompletedAt)
	return log, obs, nil
}
