package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const postgresConnectTimeout = 5 * time.Second

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS processed_emails (
			user_id TEXT NOT NULL,
			source_email_id TEXT NOT NULL,
			processed_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, source_email_id)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			start_at BIGINT NOT NULL,
			end_at BIGINT,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			child_name TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source_email_id TEXT NOT NULL,
			sync_status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			external_calendar_id TEXT NOT NULL DEFAULT '',
			sync_error TEXT NOT NULL DEFAULT '',
			claimed_at BIGINT,
			last_attempt_at BIGINT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_user_status ON calendar_events(user_id, sync_status)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_user_start ON calendar_events(user_id, start_at)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			description TEXT NOT NULL,
			todo_type TEXT NOT NULL,
			due_at BIGINT,
			status TEXT NOT NULL,
			source_email_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user_status ON todos(user_id, status)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			timezone TEXT NOT NULL,
			calendar_id TEXT NOT NULL,
			calendar_delivery_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_type TEXT NOT NULL,
			token_expiry BIGINT
		)`,
	},
	insertIgnore: "INSERT INTO",
	conflictTail: " ON CONFLICT DO NOTHING",
	upsertUserSQL: `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			timezone = EXCLUDED.timezone,
			calendar_id = EXCLUDED.calendar_id,
			calendar_delivery_enabled = EXCLUDED.calendar_delivery_enabled,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			token_expiry = EXCLUDED.token_expiry`,
	placeholders: dollarPlaceholders,
}

// NewPostgresStore connects to Postgres and ensures the schema exists
func NewPostgresStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
	}

	return newSQLStore(db, postgresDialect, logger)
}
