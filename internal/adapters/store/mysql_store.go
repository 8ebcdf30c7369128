package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS processed_emails (
			user_id VARCHAR(191) NOT NULL,
			source_email_id VARCHAR(191) NOT NULL,
			processed_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, source_email_id)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(191) NOT NULL,
			title TEXT NOT NULL,
			start_at BIGINT NOT NULL,
			end_at BIGINT NULL,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			child_name TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			source_email_id VARCHAR(191) NOT NULL,
			sync_status VARCHAR(16) NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			external_calendar_id VARCHAR(1024) NOT NULL DEFAULT '',
			sync_error TEXT NOT NULL,
			claimed_at BIGINT NULL,
			last_attempt_at BIGINT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_calendar_events_user_status (user_id, sync_status),
			INDEX idx_calendar_events_user_start (user_id, start_at)
		)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(191) NOT NULL,
			description TEXT NOT NULL,
			todo_type VARCHAR(64) NOT NULL,
			due_at BIGINT NULL,
			status VARCHAR(16) NOT NULL,
			source_email_id VARCHAR(191) NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_todos_user_status (user_id, status)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(191) PRIMARY KEY,
			email VARCHAR(320) NOT NULL,
			timezone VARCHAR(64) NOT NULL,
			calendar_id VARCHAR(320) NOT NULL,
			calendar_delivery_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_type VARCHAR(32) NOT NULL,
			token_expiry BIGINT NULL
		)`,
	},
	insertIgnore: "INSERT IGNORE INTO",
	upsertUserSQL: `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			email = VALUES(email),
			timezone = VALUES(timezone),
			calendar_id = VALUES(calendar_id),
			calendar_delivery_enabled = VALUES(calendar_delivery_enabled),
			access_token = VALUES(access_token),
			refresh_token = VALUES(refresh_token),
			token_type = VALUES(token_type),
			token_expiry = VALUES(token_expiry)`,
	placeholders: questionMarks,
}

// NewMySQLStore connects to MySQL and ensures the schema exists
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLStore(db, mysqlDialect, logger)
}
