// ABOUTME: SQLite schema definition and initialization.
// ABOUTME: Defines sessions, set_logs, observations, and daily_summaries.
package storage

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		day_key TEXT NOT NULL,
		timezone_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS set_logs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		exercise_id TEXT NOT NULL,
		exercise_name TEXT NOT NULL,
		set_index INTEGER NOT NULL CHECK (set_index >= 0),
		target_reps INTEGER NOT NULL,
		target_weight_kg REAL NOT NULL,
		actual_reps INTEGER,
		actual_weight_kg REAL,
		completed_at TEXT NOT NULL,
		rest_sec_used INTEGER,
		UNIQUE (session_id, exercise_id, set_index),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		exercise_id TEXT NOT NULL,
		set_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (session_id, exercise_id, set_index),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS daily_summaries (
		day_key TEXT PRIMARY KEY,
		timezone_id TEXT NOT NULL,
		training_completed INTEGER NOT NULL DEFAULT 0,
		plans_completed INTEGER,
		calories INTEGER,
		weight_kg REAL,
		created_at TEXT NOT NULL,
		close_reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_day ON sessions(day_key);
	CREATE INDEX IF NOT EXISTS idx_set_logs_session ON set_logs(session_id);
	CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id);
	`

	_, err := d.db.Exec(schema)
	return err
}
