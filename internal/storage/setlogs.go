// ABOUTME: Set log and observation persistence for SQLite storage.
// ABOUTME: A set and its optional note are written in one transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/harperreed/aiform/internal/models"
)

// LogSet stores the SetLog for entry and, when the note is not blank, its
// Observation. Either both rows are written or neither is. The session must
// still be active and every earlier set of the exercise must be logged.
func (d *DB) LogSet(ctx context.Context, entry SetEntry) (*models.SetLog, *models.Observation, error) {
	log, obs, err := entry.records()
	if err != nil {
		return nil, nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin log set: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkSetSlot(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := insertSetLog(ctx, tx, log); err != nil {
		return nil, nil, classifyInsert("insert set log", entry, err)
	}
	if obs != nil {
		if err := insertObservation(ctx, tx, obs); err != nil {
			return nil, nil, classifyInsert("insert observation", entry, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit log set: %w", err)
	}
	return log, obs, nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func checkSetSlot(ctx context.Context, q rowQueryer, entry SetEntry) error {
	var endedAt sql.NullString
	err := q.QueryRowContext(ctx, `SELECT ended_at FROM sessions WHERE id = ?`, entry.SessionID.String()).Scan(&endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("log set: %w: session %s", ErrNotFound, entry.SessionID)
	}
	if err != nil {
		return fmt.Errorf("log set: %w", err)
	}
	if endedAt.Valid {
		return fmt.Errorf("log set: %w: %s", ErrAlreadyFinalized, entry.SessionID)
	}

	var earlier int
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM set_logs WHERE session_id = ? AND exercise_id = ? AND set_index < ?`,
		entry.SessionID.String(), entry.Exercise.ID, entry.SetIndex).Scan(&earlier)
	if err != nil {
		return fmt.Errorf("log set: %w", err)
	}
	if earlier != entry.SetIndex {
		return fmt.Errorf("log set: %w: %s set %d after %d earlier sets",
			ErrSetOutOfOrder, entry.Exercise.ID, entry.SetIndex, earlier)
	}
	return nil
}

func classifyInsert(op string, entry SetEntry, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %s set %d", op, ErrDuplicateSet, entry.Exercise.ID, entry.SetIndex)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: session %s", op, ErrNotFound, entry.SessionID)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func insertSetLog(ctx context.Context, ex execer, l *models.SetLog) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO set_logs (id, session_id, exercise_id, exercise_name, set_index,
			target_reps, target_weight_kg, actual_reps, actual_weight_kg, completed_at, rest_sec_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID.String(),
		l.SessionID.String(),
		l.ExerciseID,
		l.ExerciseName,
		l.SetIndex,
		l.TargetReps,
		l.TargetWeightKg,
		l.ActualReps,
		l.ActualWeightKg,
		formatTime(l.CompletedAt),
		l.RestSecUsed,
	)
	return err
}

func insertObservation(ctx context.Context, ex execer, o *models.Observation) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO observations (id, session_id, exercise_id, set_index, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		o.ID.String(),
		o.SessionID.String(),
		o.ExerciseID,
		o.SetIndex,
		o.Text,
		formatTime(o.CreatedAt),
	)
	return err
}

// SetLogsBySession returns the session's set logs ordered by set index.
func (d *DB) SetLogsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.SetLog, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, session_id, exercise_id, exercise_name, set_index, target_reps, target_weight_kg,
			actual_reps, actual_weight_kg, completed_at, rest_sec_used
		FROM set_logs
		WHERE session_id = ?
		ORDER BY set_index ASC, completed_at ASC
	`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list set logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SetLog
	for rows.Next() {
		var (
			l                    models.SetLog
			id, sid, completedAt string
			actualReps, restSec  sql.NullInt64
			actualWeight         sql.NullFloat64
		)
		if err := rows.Scan(&id, &sid, &l.ExerciseID, &l.ExerciseName, &l.SetIndex, &l.TargetReps,
			&l.TargetWeightKg, &actualReps, &actualWeight, &completedAt, &restSec); err != nil {
			return nil, fmt.Errorf("scan set log: %w", err)
		}
		if l.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse set log id: %w", err)
		}
		if l.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		if l.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		l.ActualReps = nullInt(actualReps)
		l.RestSecUsed = nullInt(restSec)
		l.ActualWeightKg = nullFloat(actualWeight)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// ObservationsBySession returns the session's observations ordered by set index.
func (d *DB) ObservationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Observation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, session_id, exercise_id, set_index, text, created_at
		FROM observations
		WHERE session_id = ?
		ORDER BY set_index ASC, created_at ASC
	`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		var (
			o                  models.Observation
			id, sid, createdAt string
		)
		if err := rows.Scan(&id, &sid, &o.ExerciseID, &o.SetIndex, &o.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse observation id: %w", err)
		}
		if o.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		if o.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
