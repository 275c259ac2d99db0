// ABOUTME: Daily summary ledger operations for SQLite storage.
// ABOUTME: Closing a day is one insert-if-absent statement keyed by day_key.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/aiform/internal/models"
)

// CloseDayIfOpen records the closure of dayKey unless it is already closed.
// It reports whether this call created the summary.
func (d *DB) CloseDayIfOpen(ctx context.Context, dayKey, timezoneID string, reason models.CloseReason, now time.Time) (bool, error) {
	return d.CloseDay(ctx, models.NewDailySummary(dayKey, timezoneID, reason, now))
}

// CloseDay inserts summary unless a row for its day key exists. Training
// completion is derived from finished sessions in the same statement.
func (d *DB) CloseDay(ctx context.Context, summary *models.DailySummary) (bool, error) {
	if !summary.CloseReason.IsValid() {
		return false, fmt.Errorf("close day: unknown reason %q", summary.CloseReason)
	}

	// WHERE true disambiguates the upsert clause after INSERT ... SELECT.
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO daily_summaries (day_key, timezone_id, training_completed, plans_completed,
			calories, weight_kg, created_at, close_reason)
		SELECT ?, ?,
			EXISTS(SELECT 1 FROM sessions WHERE day_key = ? AND ended_at IS NOT NULL),
			(SELECT COUNT(*) FROM sessions WHERE day_key = ? AND ended_at IS NOT NULL),
			?, ?, ?, ?
		WHERE true
		ON CONFLICT(day_key) DO NOTHING
	`,
		summary.DayKey,
		summary.TimezoneID,
		summary.DayKey,
		summary.DayKey,
		summary.Calories,
		summary.WeightKg,
		formatTime(summary.CreatedAt),
		string(summary.CloseReason),
	)
	if err != nil {
		return false, fmt.Errorf("close day %s: %w", summary.DayKey, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close day %s: %w", summary.DayKey, err)
	}
	return affected == 1, nil
}

// IsDayClosed reports whether a summary exists for dayKey.
func (d *DB) IsDayClosed(ctx context.Context, dayKey string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM daily_summaries WHERE day_key = ?)`, dayKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check day closed: %w", err)
	}
	return exists, nil
}

const summaryColumns = `day_key, timezone_id, training_completed, plans_completed, calories, weight_kg, created_at, close_reason`

// GetDailySummary returns the summary for dayKey.
func (d *DB) GetDailySummary(ctx context.Context, dayKey string) (*models.DailySummary, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM daily_summaries WHERE day_key = ?`, dayKey)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: day %s", ErrNotFound, dayKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get daily summary: %w", err)
	}
	return s, nil
}

// ListDailySummaries returns summaries, most recent day first.
func (d *DB) ListDailySummaries(ctx context.Context, limit int) ([]*models.DailySummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM daily_summaries ORDER BY day_key DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.DailySummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSummary(row rowScanner) (*models.DailySummary, error) {
	var (
		s                 models.DailySummary
		createdAt, reason string
		plans, calories   sql.NullInt64
		weight            sql.NullFloat64
	)
	if err := row.Scan(&s.DayKey, &s.TimezoneID, &s.TrainingCompleted, &plans, &calories,
		&weight, &createdAt, &reason); err != nil {
		return nil, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	s.CreatedAt = t
	s.CloseReason = models.CloseReason(reason)
	s.PlansCompleted = nullInt(plans)
	s.Calories = nullInt(calories)
	s.WeightKg = nullFloat(weight)
	return &s, nil
}
