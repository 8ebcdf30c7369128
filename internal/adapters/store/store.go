package store

import (
	"context"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
)

// Repository is the full persistence surface the pipeline needs from one backend
type Repository interface {
	core.Ledger
	core.EventStore
	core.TodoStore
	core.UserDirectory
	core.DeliverySettings

	// UpsertUser creates or replaces a user record
	UpsertUser(ctx context.Context, user *core.User) error

	// Close releases the backend's resources
	Close() error
}

func copyEvent(e *core.StoredEvent) *core.StoredEvent {
	c := *e
	c.End = copyTime(e.End)
	c.ClaimedAt = copyTime(e.ClaimedAt)
	c.LastAttemptAt = copyTime(e.LastAttemptAt)
	return &c
}

func copyTodo(t *core.StoredTodo) *core.StoredTodo {
	c := *t
	c.DueDate = copyTime(t.DueDate)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
