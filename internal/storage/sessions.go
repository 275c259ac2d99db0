// ABOUTME: Session CRUD operations for SQLite storage.
// ABOUTME: Finalize is a conditional update so a session ends exactly once.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/aiform/internal/models"
)

const sessionColumns = `id, day_key, timezone_id, started_at, ended_at, title, created_at`

// CreateSession inserts a new active session.
func (d *DB) CreateSession(ctx context.Context, dayKey, timezoneID, title string, now time.Time) (*models.Session, error) {
	s := models.NewSession(dayKey, timezoneID, title, now)
	if err := d.insertSession(ctx, d.db, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) insertSession(ctx context.Context, ex execer, s *models.Session) error {
	var ended *string
	if s.EndedAt != nil {
		v := formatTime(*s.EndedAt)
		ended = &v
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID.String(),
		s.DayKey,
		s.TimezoneID,
		formatTime(s.StartedAt),
		ended,
		s.Title,
		formatTime(s.CreatedAt),
	)
	return err
}

// GetSession retrieves a session by ID or ID prefix.
func (d *DB) GetSession(ctx context.Context, idOrPrefix string) (*models.Session, error) {
	id, err := d.resolveSessionID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	row := d.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, idOrPrefix)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions retrieves sessions, most recent first.
func (d *DB) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// FinalizeSession sets endedAt on an active session.
func (d *DB) FinalizeSession(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		formatTime(now), id.String())
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: either missing or already ended.
	var exists bool
	err = d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, id.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyFinalized, id)
}

// DeleteSession removes a session and its set logs and observations (cascade delete).
func (d *DB) DeleteSession(ctx context.Context, idOrPrefix string) error {
	id, err := d.resolveSessionID(ctx, idOrPrefix)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	// CASCADE is enabled, so deleting the session deletes its children
	result, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, idOrPrefix)
	}

	return nil
}

// resolveSessionID finds the full ID from a prefix.
func (d *DB) resolveSessionID(ctx context.Context, idOrPrefix string) (string, error) {
	if len(idOrPrefix) == 36 && strings.Count(idOrPrefix, "-") == 4 {
		return idOrPrefix, nil
	}
	if idOrPrefix == "" {
		return "", fmt.Errorf("%w: empty session id", ErrNotFound)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id FROM sessions WHERE id LIKE ? || '%'`, idOrPrefix)
	if err != nil {
		return "", fmt.Errorf("resolve session ID: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan session ID: %w", err)
		}
		matches = append(matches, id)
	}

	return pickMatch(idOrPrefix, matches)
}

func pickMatch(prefix string, matches []string) (string, error) {
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: session %s", ErrNotFound, prefix)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous prefix %s: matches multiple records", prefix)
	}
	return matches[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                        models.Session
		id, startedAt, createdAt string
		endedAt                  sql.NullString
	)
	if err := row.Scan(&id, &s.DayKey, &s.TimezoneID, &startedAt, &endedAt, &s.Title, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	return &s, nil
}
