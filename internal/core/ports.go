package core

import (
	"context"
	"time"
)

// EmailFetcher retrieves a batch of recent emails for a user
type EmailFetcher interface {
	// FetchEmails returns at most maxResults emails within the date range
	FetchEmails(ctx context.Context, auth AuthContext, dateRange DateRange, maxResults int) ([]Email, error)
}

// Extractor derives calendar events and todos from a batch of emails
type Extractor interface {
	// Extract analyzes the whole batch in a single call
	Extract(ctx context.Context, emails []Email, opts ExtractOptions) (*Extraction, error)
}

// CalendarClient talks to the user's external calendar
type CalendarClient interface {
	// Insert creates the event and returns its external id
	Insert(ctx context.Context, auth AuthContext, event *StoredEvent) (string, error)

	// List returns events whose start falls within the window
	List(ctx context.Context, auth AuthContext, window TimeWindow) ([]ExistingEvent, error)
}

// DeliverySettings reports whether a user wants events pushed to their calendar
type DeliverySettings interface {
	IsCalendarDeliveryEnabled(ctx context.Context, userID string) (bool, error)
}

// FailureNotifier is told about events that exhausted their delivery retries
type FailureNotifier interface {
	NotifyExhausted(ctx context.Context, userID string, events []*StoredEvent) error
}

// UserDirectory lists the accounts the scheduler runs for
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]*User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Ledger records which source emails have been fully processed
type Ledger interface {
	// IsProcessed reports whether the email was already processed for the user
	IsProcessed(ctx context.Context, userID, emailID string) (bool, error)

	// MarkProcessed records the email. Marking twice is a no-op.
	MarkProcessed(ctx context.Context, userID, emailID string) error
}

// EventStore persists events and drives their delivery state machine
type EventStore interface {
	InsertEvents(ctx context.Context, events []*StoredEvent) error
	GetEvent(ctx context.Context, eventID string) (*StoredEvent, error)
	ListEvents(ctx context.Context, userID string) ([]*StoredEvent, error)

	// ListDeliverableEvents returns pending or failed events with retry_count < maxRetries
	ListDeliverableEvents(ctx context.Context, userID string, maxRetries int) ([]*StoredEvent, error)

	// ClaimEvent moves a deliverable event to in_progress. It returns false when
	// the event is no longer deliverable (claimed elsewhere, synced, deleted or exhausted).
	ClaimEvent(ctx context.Context, eventID string, maxRetries int, now time.Time) (bool, error)

	// MarkEventSynced completes a claimed event
	MarkEventSynced(ctx context.Context, eventID, externalID string, now time.Time) error

	// MarkEventFailed records a failed attempt on a claimed event and increments retry_count
	MarkEventFailed(ctx context.Context, eventID, syncErr string, now time.Time) error

	// RequeueStaleClaims returns in_progress events claimed before staleBefore to pending
	RequeueStaleClaims(ctx context.Context, userID string, staleBefore time.Time) (int, error)

	// DeleteEventsStartingBefore removes the user's events starting before cutoff and
	// returns their ids. In-progress events and failed events whose retry_count has
	// reached maxRetries are kept.
	DeleteEventsStartingBefore(ctx context.Context, userID string, cutoff time.Time, maxRetries int) ([]string, error)
}

// TodoStore persists todos
type TodoStore interface {
	InsertTodos(ctx context.Context, todos []*StoredTodo) error
	ListTodos(ctx context.Context, userID string) ([]*StoredTodo, error)

	// CompleteTodosDueBefore marks pending todos due before cutoff as done
	CompleteTodosDueBefore(ctx context.Context, userID string, cutoff time.Time) (int, error)
}
