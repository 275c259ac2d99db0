// ABOUTME: Postgres storage backend using pgx connection pools.
// ABOUTME: Mirrors the SQLite repository for users who keep history on a server.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harperreed/aiform/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	day_key     TEXT NOT NULL,
	timezone_id TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	title       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS set_logs (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	exercise_id      TEXT NOT NULL,
	exercise_name    TEXT NOT NULL,
	set_index        INT NOT NULL CHECK (set_index >= 0),
	target_reps      INT NOT NULL,
	target_weight_kg DOUBLE PRECISION NOT NULL,
	actual_reps      INT,
	actual_weight_kg DOUBLE PRECISION,
	completed_at     TIMESTAMPTZ NOT NULL,
	rest_sec_used    INT,
	UNIQUE (session_id, exercise_id, set_index)
);

CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	exercise_id TEXT NOT NULL,
	set_index   INT NOT NULL,
	text        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, exercise_id, set_index)
);

CREATE TABLE IF NOT EXISTS daily_summaries (
	day_key            TEXT PRIMARY KEY,
	timezone_id        TEXT NOT NULL,
	training_completed BOOLEAN NOT NULL DEFAULT false,
	plans_completed    INT,
	calories           INT,
	weight_kg          DOUBLE PRECISION,
	created_at         TIMESTAMPTZ NOT NULL,
	close_reason       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_day ON sessions(day_key);
CREATE INDEX IF NOT EXISTS idx_set_logs_session ON set_logs(session_id);
CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id);
`

var _ Repository = (*PostgresDB)(nil)

// PostgresDB is a Repository backed by a pgx pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &PostgresDB{pool: pool}, nil
}

// Close releases the pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateSession inserts a new active session.
func (p *PostgresDB) CreateSession(ctx context.Context, dayKey, timezoneID, title string, now time.Time) (*models.Session, error) {
	s := models.NewSession(dayKey, timezoneID, title, now)
	if err := pgInsertSession(ctx, p.pool, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func pgInsertSession(ctx context.Context, ex pgExecer, s *models.Session) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID.String(), s.DayKey, s.TimezoneID, s.StartedAt, s.EndedAt, s.Title, s.CreatedAt)
	return err
}

// GetSession retrieves a session by ID or ID prefix.
func (p *PostgresDB) GetSession(ctx context.Context, idOrPrefix string) (*models.Session, error) {
	id, err := p.resolveSessionID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := pgScanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, idOrPrefix)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions retrieves sessions, most recent first.
func (p *PostgresDB) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := pgScanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// FinalizeSession sets endedAt on an active session.
func (p *PostgresDB) FinalizeSession(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL`, now.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyFinalized, id)
}

// DeleteSession removes a session and its children (cascade delete).
func (p *PostgresDB) DeleteSession(ctx context.Context, idOrPrefix string) error {
	id, err := p.resolveSessionID(ctx, idOrPrefix)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, idOrPrefix)
	}
	return nil
}

func (p *PostgresDB) resolveSessionID(ctx context.Context, idOrPrefix string) (string, error) {
	if len(idOrPrefix) == 36 && strings.Count(idOrPrefix, "-") == 4 {
		return idOrPrefix, nil
	}
	if idOrPrefix == "" {
		return "", fmt.Errorf("%w: empty session id", ErrNotFound)
	}

	rows, err := p.pool.Query(ctx, `SELECT id FROM sessions WHERE id LIKE $1 || '%'`, idOrPrefix)
	if err != nil {
		return "", fmt.Errorf("resolve session ID: %w", err)
	}
	matches, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", fmt.Errorf("scan session ID: %w", err)
	}
	return pickMatch(idOrPrefix, matches)
}

func pgScanSession(row pgx.Row) (*models.Session, error) {
	var (
		s  models.Session
		id string
	)
	if err := row.Scan(&id, &s.DayKey, &s.TimezoneID, &s.StartedAt, &s.EndedAt, &s.Title, &s.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	s.ID = parsed
	s.StartedAt = s.StartedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		s.EndedAt = &t
	}
	return &s, nil
}

// LogSet stores the SetLog and optional Observation in one transaction once
// the session is confirmed active and earlier sets of the exercise are logged.
func (p *PostgresDB) LogSet(ctx context.Context, entry SetEntry) (*models.SetLog, *models.Observation, error) {
	log, obs, err := entry.records()
	if err != nil {
		return nil, nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin log set: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := pgCheckSetSlot(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := pgInsertSetLog(ctx, tx, log); err != nil {
		return nil, nil, pgClassifyInsert("insert set log", entry, err)
	}
	if obs != nil {
		if err := pgInsertObservation(ctx, tx, obs); err != nil {
			return nil, nil, pgClassifyInsert("insert observation", entry, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit log set: %w", err)
	}
	return log, obs, nil
}

func pgCheckSetSlot(ctx context.Context, tx pgx.Tx, entry SetEntry) error {
	var endedAt *time.Time
	err := tx.QueryRow(ctx, `SELECT ended_at FROM sessions WHERE id = $1 FOR UPDATE`, entry.SessionID.String()).Scan(&endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("log set: %w: session %s", ErrNotFound, entry.SessionID)
	}
	if err != nil {
		return fmt.Errorf("log set: %w", err)
	}
	if endedAt != nil {
		return fmt.Errorf("log set: %w: %s", ErrAlreadyFinalized, entry.SessionID)
	}

	var earlier int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM set_logs WHERE session_id = $1 AND exercise_id = $2 AND set_index < $3`,
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

func pgClassifyInsert(op string, entry SetEntry, err error) error {
	switch pgCode(err) {
	case "23505":
		return fmt.Errorf("%s: %w: %s set %d", op, ErrDuplicateSet, entry.Exercise.ID, entry.SetIndex)
	case "23503":
		return fmt.Errorf("%s: %w: session %s", op, ErrNotFound, entry.SessionID)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func pgInsertSetLog(ctx context.Context, ex pgExecer, l *models.SetLog) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO set_logs (id, session_id, exercise_id, exercise_name, set_index,
			target_reps, target_weight_kg, actual_reps, actual_weight_kg, completed_at, rest_sec_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID.String(), l.SessionID.String(), l.ExerciseID, l.ExerciseName, l.SetIndex,
		l.TargetReps, l.TargetWeightKg, l.ActualReps, l.ActualWeightKg, l.CompletedAt, l.RestSecUsed)
	return err
}

func pgInsertObservation(ctx context.Context, ex pgExecer, o *models.Observation) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO observations (id, session_id, exercise_id, set_index, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID.String(), o.SessionID.String(), o.ExerciseID, o.SetIndex, o.Text, o.CreatedAt)
	return err
}

// SetLogsBySession returns the session's set logs ordered by set index.
func (p *PostgresDB) SetLogsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.SetLog, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, exercise_id, exercise_name, set_index, target_reps, target_weight_kg,
			actual_reps, actual_weight_kg, completed_at, rest_sec_used
		FROM set_logs
		WHERE session_id = $1
		ORDER BY set_index ASC, completed_at ASC
	`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list set logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SetLog
	for rows.Next() {
		var (
			l       models.SetLog
			id, sid string
		)
		if err := rows.Scan(&id, &sid, &l.ExerciseID, &l.ExerciseName, &l.SetIndex, &l.TargetReps,
			&l.TargetWeightKg, &l.ActualReps, &l.ActualWeightKg, &l.CompletedAt, &l.RestSecUsed); err != nil {
			return nil, fmt.Errorf("scan set log: %w", err)
		}
		if l.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse set log id: %w", err)
		}
		if l.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		l.CompletedAt = l.CompletedAt.UTC()
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// ObservationsBySession returns the session's observations ordered by set index.
func (p *PostgresDB) ObservationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Observation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, exercise_id, set_index, text, created_at
		FROM observations
		WHERE session_id = $1
		ORDER BY set_index ASC, created_at ASC
	`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		var (
			o       models.Observation
			id, sid string
		)
		if err := rows.Scan(&id, &sid, &o.ExerciseID, &o.SetIndex, &o.Text, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse observation id: %w", err)
		}
		if o.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		out = append(out, &o)
	}
	return out, rows.Err()
}

// CloseDayIfOpen records the closure of dayKey unless it is already closed.
func (p *PostgresDB) CloseDayIfOpen(ctx context.Context, dayKey, timezoneID string, reason models.CloseReason, now time.Time) (bool, error) {
	return p.CloseDay(ctx, models.NewDailySummary(dayKey, timezoneID, reason, now))
}

// CloseDay inserts summary unless a row for its day key exists.
func (p *PostgresDB) CloseDay(ctx context.Context, summary *models.DailySummary) (bool, error) {
	if !summary.CloseReason.IsValid() {
		return false, fmt.Errorf("close day: unknown reason %q", summary.CloseReason)
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO daily_summaries (`+summaryColumns+`)
		SELECT $1::text, $2::text,
			EXISTS(SELECT 1 FROM sessions WHERE day_key = $1::text AND ended_at IS NOT NULL),
			(SELECT COUNT(*) FROM sessions WHERE day_key = $1::text AND ended_at IS NOT NULL),
			$3::int, $4::double precision, $5::timestamptz, $6::text
		ON CONFLICT (day_key) DO NOTHING
	`, summary.DayKey, summary.TimezoneID, summary.Calories, summary.WeightKg,
		summary.CreatedAt, string(summary.CloseReason))
	if err != nil {
		return false, fmt.Errorf("close day %s: %w", summary.DayKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsDayClosed reports whether a summary exists for dayKey.
func (p *PostgresDB) IsDayClosed(ctx context.Context, dayKey string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM daily_summaries WHERE day_key = $1)`, dayKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check day closed: %w", err)
	}
	return exists, nil
}

// GetDailySummary returns the summary for dayKey.
func (p *PostgresDB) GetDailySummary(ctx context.Context, dayKey string) (*models.DailySummary, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+summaryColumns+` FROM daily_summaries WHERE day_key = $1`, dayKey)
	s, err := pgScanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: day %s", ErrNotFound, dayKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get daily summary: %w", err)
	}
	return s, nil
}

// ListDailySummaries returns summaries, most recent day first.
func (p *PostgresDB) ListDailySummaries(ctx context.Context, limit int) ([]*models.DailySummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM daily_summaries ORDER BY day_key DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.DailySummary
	for rows.Next() {
		s, err := pgScanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func pgScanSummary(row pgx.Row) (*models.DailySummary, error) {
	var (
		s      models.DailySummary
		reason string
	)
	if err := row.Scan(&s.DayKey, &s.TimezoneID, &s.TrainingCompleted, &s.PlansCompleted,
		&s.Calories, &s.WeightKg, &s.CreatedAt, &reason); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.CloseReason = models.CloseReason(reason)
	return &s, nil
}

// GetAllData retrieves all data for export.
func (p *PostgresDB) GetAllData(ctx context.Context) (*ExportData, error) {
	return collectExport(ctx, p)
}

// ImportData imports an export in one transaction.
func (p *PostgresDB) ImportData(ctx context.Context, data *ExportData) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range data.Sessions {
		if err := pgInsertSession(ctx, tx, s); err != nil {
			return fmt.Errorf("import session %s: %w", s.ID, err)
		}
		for i := range s.SetLogs {
			l := s.SetLogs[i]
			l.SessionID = s.ID
			if err := pgInsertSetLog(ctx, tx, &l); err != nil {
				return fmt.Errorf("import set log %s: %w", l.ID, err)
			}
		}
		for i := range s.Observations {
			o := s.Observations[i]
			o.SessionID = s.ID
			if err := pgInsertObservation(ctx, tx, &o); err != nil {
				return fmt.Errorf("import observation %s: %w", o.ID, err)
			}
		}
	}

	for _, sum := range data.DailySummaries {
		_, err := tx.Exec(ctx, `
			INSERT INTO daily_summaries (`+summaryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (day_key) DO NOTHING
		`, sum.DayKey, sum.TimezoneID, sum.TrainingCompleted, sum.PlansCompleted,
			sum.Calories, sum.WeightKg, sum.CreatedAt, string(sum.CloseReason))
		if err != nil {
			return fmt.Errorf("import daily summary %s: %w", sum.DayKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
