package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
)

const eventColumns = `id, user_id, title, start_at, end_at, description, location, child_name,
	confidence, source_email_id, sync_status, retry_count, external_calendar_id, sync_error,
	claimed_at, last_attempt_at, created_at`

const todoColumns = `id, user_id, description, todo_type, due_at, status, source_email_id, created_at`

const userColumns = `user_id, email, timezone, calendar_id, calendar_delivery_enabled,
	access_token, refresh_token, token_type, token_expiry`

// dialect captures the SQL differences between the supported databases
type dialect struct {
	name          string
	schema        []string
	insertIgnore  string
	conflictTail  string
	upsertUserSQL string
	placeholders  func(query string) string
}

// SQLStore is a database/sql implementation of Repository shared by every SQL backend
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStore(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d, logger: logger}, nil
}

// questionMarks leaves ? placeholders untouched
func questionMarks(query string) string {
	return query
}

// dollarPlaceholders rewrites ? placeholders into $1, $2, ...
func dollarPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) q(query string) string {
	return s.dialect.placeholders(query)
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*core.StoredEvent, error) {
	var (
		e                               core.StoredEvent
		startAt, createdAt              int64
		endAt, claimedAt, lastAttemptAt sql.NullInt64
		status                          string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &startAt, &endAt, &e.Description, &e.Location, &e.ChildName,
		&e.Confidence, &e.SourceEmailID, &status, &e.RetryCount, &e.ExternalCalendarID, &e.SyncError,
		&claimedAt, &lastAttemptAt, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Start = time.UnixMilli(startAt).UTC()
	e.End = fromMillis(endAt)
	e.SyncStatus = core.SyncStatus(status)
	e.ClaimedAt = fromMillis(claimedAt)
	e.LastAttemptAt = fromMillis(lastAttemptAt)
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &e, nil
}

func scanTodo(row rowScanner) (*core.StoredTodo, error) {
	var (
		t         core.StoredTodo
		dueAt     sql.NullInt64
		createdAt int64
		status    string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Type, &dueAt, &status, &t.SourceEmailID, &createdAt); err != nil {
		return nil, err
	}
	t.DueDate = fromMillis(dueAt)
	t.Status = core.TodoStatus(status)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &t, nil
}

func scanUser(row rowScanner) (*core.User, error) {
	var (
		u      core.User
		expiry sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Timezone, &u.CalendarID, &u.CalendarDeliveryEnabled,
		&u.Token.AccessToken, &u.Token.RefreshToken, &u.Token.TokenType, &expiry)
	if err != nil {
		return nil, err
	}
	if t := fromMillis(expiry); t != nil {
		u.Token.Expiry = *t
	}
	return &u, nil
}

// IsProcessed reports whether the email was already processed for the user
func (s *SQLStore) IsProcessed(ctx context.Context, userID, emailID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT 1 FROM processed_emails
		WHERE user_id = ? AND source_email_id = ?
	`), userID, emailID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query processed email: %w", err)
	}
	return true, nil
}

// MarkProcessed records the email. The primary key turns a second mark into a no-op.
func (s *SQLStore) MarkProcessed(ctx context.Context, userID, emailID string) error {
	_, err := s.db.ExecContext(ctx, s.q(s.dialect.insertIgnore+` processed_emails (user_id, source_email_id, processed_at)
		VALUES (?, ?, ?)`+s.dialect.conflictTail), userID, emailID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	return nil
}

// InsertEvents stores a batch of events in one transaction
func (s *SQLStore) InsertEvents(ctx context.Context, events []*core.StoredEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO calendar_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx, e.ID, e.UserID, e.Title, e.Start.UnixMilli(), toMillis(e.End),
			e.Description, e.Location, e.ChildName, e.Confidence, e.SourceEmailID, string(e.SyncStatus),
			e.RetryCount, e.ExternalCalendarID, e.SyncError, toMillis(e.ClaimedAt), toMillis(e.LastAttemptAt),
			e.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// GetEvent returns a stored event
func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (*core.StoredEvent, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`), eventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return e, nil
}

// ListEvents returns the user's events ordered by start
func (s *SQLStore) ListEvents(ctx context.Context, userID string) ([]*core.StoredEvent, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM calendar_events
		WHERE user_id = ?
		ORDER BY start_at, id`, userID)
}

// ListDeliverableEvents returns pending or failed events below the retry ceiling
func (s *SQLStore) ListDeliverableEvents(ctx context.Context, userID string, maxRetries int) ([]*core.StoredEvent, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM calendar_events
		WHERE user_id = ? AND sync_status IN ('pending', 'failed') AND retry_count < ?
		ORDER BY start_at, id`, userID, maxRetries)
}

func (s *SQLStore) queryEvents(ctx context.Context, query string, args ...any) ([]*core.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*core.StoredEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ClaimEvent moves a deliverable event to in_progress with a conditional update
func (s *SQLStore) ClaimEvent(ctx context.Context, eventID string, maxRetries int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calendar_events
		SET sync_status = 'in_progress', claimed_at = ?
		WHERE id = ? AND sync_status IN ('pending', 'failed') AND retry_count < ?
	`), now.UnixMilli(), eventID, maxRetries)
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// MarkEventSynced completes a claimed event
func (s *SQLStore) MarkEventSynced(ctx context.Context, eventID, externalID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calendar_events
		SET sync_status = 'synced', external_calendar_id = ?, sync_error = '', claimed_at = NULL, last_attempt_at = ?
		WHERE id = ? AND sync_status = 'in_progress'
	`), externalID, now.UnixMilli(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}
	return s.checkTransition(ctx, res, eventID, core.SyncStatusSynced)
}

// MarkEventFailed records a failed attempt on a claimed event
func (s *SQLStore) MarkEventFailed(ctx context.Context, eventID, syncErr string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calendar_events
		SET sync_status = 'failed', sync_error = ?, retry_count = retry_count + 1, claimed_at = NULL, last_attempt_at = ?
		WHERE id = ? AND sync_status = 'in_progress'
	`), syncErr, now.UnixMilli(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return s.checkTransition(ctx, res, eventID, core.SyncStatusFailed)
}

// checkTransition explains a conditional update that touched no rows
func (s *SQLStore) checkTransition(ctx context.Context, res sql.Result, eventID string, to core.SyncStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 1 {
		return nil
	}
	current, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return core.CheckTransition(current.SyncStatus, to)
}

// RequeueStaleClaims returns abandoned claims to pending
func (s *SQLStore) RequeueStaleClaims(ctx context.Context, userID string, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calendar_events
		SET sync_status = 'pending', claimed_at = NULL
		WHERE user_id = ? AND sync_status = 'in_progress' AND claimed_at < ?
	`), userID, staleBefore.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read requeue result: %w", err)
	}
	return int(n), nil
}

// DeleteEventsStartingBefore removes the user's stale events that are neither being
// delivered nor exhausted
func (s *SQLStore) DeleteEventsStartingBefore(ctx context.Context, userID string, cutoff time.Time, maxRetries int) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.q(`
		SELECT id FROM calendar_events
		WHERE user_id = ? AND start_at < ? AND sync_status <> 'in_progress'
			AND NOT (sync_status = 'failed' AND retry_count >= ?)
		ORDER BY id
	`), userID, cutoff.UnixMilli(), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale events: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stale event: %w", err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale events: %w", err)
	}

	removed := make([]string, 0, len(candidates))
	for _, id := range candidates {
		res, err := tx.ExecContext(ctx, s.q(`
			DELETE FROM calendar_events
			WHERE id = ? AND sync_status <> 'in_progress'
				AND NOT (sync_status = 'failed' AND retry_count >= ?)
		`), id, maxRetries)
		if err != nil {
			return nil, fmt.Errorf("failed to delete event %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			removed = append(removed, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event deletion: %w", err)
	}
	return removed, nil
}

// InsertTodos stores a batch of todos in one transaction
func (s *SQLStore) InsertTodos(ctx context.Context, todos []*core.StoredTodo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare todo insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range todos {
		_, err := stmt.ExecContext(ctx, t.ID, t.UserID, t.Description, t.Type, toMillis(t.DueDate),
			string(t.Status), t.SourceEmailID, t.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert todo %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit todos: %w", err)
	}
	return nil
}

// ListTodos returns the user's todos
func (s *SQLStore) ListTodos(ctx context.Context, userID string) ([]*core.StoredTodo, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+todoColumns+` FROM todos WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	var todos []*core.StoredTodo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// CompleteTodosDueBefore marks pending todos due before cutoff as done
func (s *SQLStore) CompleteTodosDueBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE todos SET status = 'done'
		WHERE user_id = ? AND status = 'pending' AND due_at IS NOT NULL AND due_at < ?
	`), userID, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to complete past todos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read todo update result: %w", err)
	}
	return int(n), nil
}

// UpsertUser creates or replaces a user record
func (s *SQLStore) UpsertUser(ctx context.Context, u *core.User) error {
	var expiry any
	if !u.Token.Expiry.IsZero() {
		expiry = u.Token.Expiry.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, s.q(s.dialect.upsertUserSQL), u.ID, u.Email, u.Timezone, u.CalendarID,
		u.CalendarDeliveryEnabled, u.Token.AccessToken, u.Token.RefreshToken, u.Token.TokenType, expiry)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// ListUsers returns every user ordered by id
func (s *SQLStore) ListUsers(ctx context.Context) ([]*core.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns a user
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// IsCalendarDeliveryEnabled reports the user's delivery preference. Unknown users have it disabled.
func (s *SQLStore) IsCalendarDeliveryEnabled(ctx context.Context, userID string) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT calendar_delivery_enabled FROM users WHERE user_id = ?
	`), userID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query delivery setting: %w", err)
	}
	return enabled, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.String("dialect", s.dialect.name), zap.Error(err))
		return err
	}
	return nil
}
