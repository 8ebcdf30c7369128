package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS processed_emails (
			user_id TEXT NOT NULL,
			source_email_id TEXT NOT NULL,
			processed_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, source_email_id)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			child_name TEXT NOT NULL,
			confidence REAL NOT NULL,
			source_email_id TEXT NOT NULL,
			sync_status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			external_calendar_id TEXT NOT NULL DEFAULT '',
			sync_error TEXT NOT NULL DEFAULT '',
			claimed_at INTEGER,
			last_attempt_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_user_status ON calendar_events(user_id, sync_status)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_user_start ON calendar_events(user_id, start_at)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			todo_type TEXT NOT NULL,
			due_at INTEGER,
			status TEXT NOT NULL,
			source_email_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user_status ON todos(user_id, status)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			timezone TEXT NOT NULL,
			calendar_id TEXT NOT NULL,
			calendar_delivery_enabled BOOLEAN NOT NULL DEFAULT 0,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_type TEXT NOT NULL,
			token_expiry INTEGER
		)`,
	},
	insertIgnore: "INSERT OR IGNORE INTO",
	upsertUserSQL: `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			timezone = excluded.timezone,
			calendar_id = excluded.calendar_id,
			calendar_delivery_enabled = excluded.calendar_delivery_enabled,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			token_expiry = excluded.token_expiry`,
	placeholders: questionMarks,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection serializes
	// the conditional updates that claim events.
	db.SetMaxOpenConns(1)

	return newSQLStore(db, sqliteDialect, logger)
}
