package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
)

type ledgerKey struct {
	userID  string
	emailID string
}

// MemoryStore is an in-memory implementation of Repository
type MemoryStore struct {
	mu        sync.RWMutex
	processed map[ledgerKey]time.Time
	events    map[string]*core.StoredEvent
	todos     map[string]*core.StoredTodo
	users     map[string]*core.User
	logger    *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		processed: make(map[ledgerKey]time.Time),
		events:    make(map[string]*core.StoredEvent),
		todos:     make(map[string]*core.StoredTodo),
		users:     make(map[string]*core.User),
		logger:    logger,
	}
}

// IsProcessed reports whether the email was already processed for the user
func (s *MemoryStore) IsProcessed(ctx context.Context, userID, emailID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[ledgerKey{userID, emailID}]
	return ok, nil
}

// MarkProcessed records the email. The first mark wins.
func (s *MemoryStore) MarkProcessed(ctx context.Context, userID, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{userID, emailID}
	if _, ok := s.processed[key]; !ok {
		s.processed[key] = time.Now()
	}
	return nil
}

// InsertEvents stores a batch of events
func (s *MemoryStore) InsertEvents(ctx context.Context, events []*core.StoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.events[e.ID] = copyEvent(e)
	}
	return nil
}

// GetEvent returns a stored event
func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*core.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, core.ErrEventNotFound
	}
	return copyEvent(e), nil
}

// ListEvents returns the user's events ordered by start
func (s *MemoryStore) ListEvents(ctx context.Context, userID string) ([]*core.StoredEvent, error) {
	return s.filterEvents(userID, func(*core.StoredEvent) bool { return true }), nil
}

// ListDeliverableEvents returns pending or failed events below the retry ceiling
func (s *MemoryStore) ListDeliverableEvents(ctx context.Context, userID string, maxRetries int) ([]*core.StoredEvent, error) {
	return s.filterEvents(userID, func(e *core.StoredEvent) bool {
		return core.IsDeliverable(e, maxRetries)
	}), nil
}

func (s *MemoryStore) filterEvents(userID string, keep func(*core.StoredEvent) bool) []*core.StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.StoredEvent
	for _, e := range s.events {
		if e.UserID == userID && keep(e) {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// ClaimEvent moves a deliverable event to in_progress
func (s *MemoryStore) ClaimEvent(ctx context.Context, eventID string, maxRetries int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok || !core.IsDeliverable(e, maxRetries) {
		return false, nil
	}
	e.SyncStatus = core.SyncStatusInProgress
	e.ClaimedAt = &now
	return true, nil
}

// MarkEventSynced completes a claimed event
func (s *MemoryStore) MarkEventSynced(ctx context.Context, eventID, externalID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return core.ErrEventNotFound
	}
	if err := core.CheckTransition(e.SyncStatus, core.SyncStatusSynced); err != nil {
		return err
	}
	e.SyncStatus = core.SyncStatusSynced
	e.ExternalCalendarID = externalID
	e.SyncError = ""
	e.ClaimedAt = nil
	e.LastAttemptAt = &now
	return nil
}

// MarkEventFailed records a failed attempt on a claimed event
func (s *MemoryStore) MarkEventFailed(ctx context.Context, eventID, syncErr string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return core.ErrEventNotFound
	}
	if err := core.CheckTransition(e.SyncStatus, core.SyncStatusFailed); err != nil {
		return err
	}
	e.SyncStatus = core.SyncStatusFailed
	e.SyncError = syncErr
	e.RetryCount++
	e.ClaimedAt = nil
	e.LastAttemptAt = &now
	return nil
}

// RequeueStaleClaims returns abandoned claims to pending
func (s *MemoryStore) RequeueStaleClaims(ctx context.Context, userID string, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.events {
		if e.UserID != userID || e.SyncStatus != core.SyncStatusInProgress {
			continue
		}
		if e.ClaimedAt != nil && e.ClaimedAt.Before(staleBefore) {
			e.SyncStatus = core.SyncStatusPending
			e.ClaimedAt = nil
			count++
		}
	}
	return count, nil
}

// DeleteEventsStartingBefore removes the user's stale events
func (s *MemoryStore) DeleteEventsStartingBefore(ctx context.Context, userID string, cutoff time.Time, maxRetries int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, e := range s.events {
		if e.UserID != userID || e.SyncStatus == core.SyncStatusInProgress || core.IsExhausted(e, maxRetries) {
			continue
		}
		if e.Start.Before(cutoff) {
			delete(s.events, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertTodos stores a batch of todos
func (s *MemoryStore) InsertTodos(ctx context.Context, todos []*core.StoredTodo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range todos {
		s.todos[t.ID] = copyTodo(t)
	}
	return nil
}

// ListTodos returns the user's todos
func (s *MemoryStore) ListTodos(ctx context.Context, userID string) ([]*core.StoredTodo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.StoredTodo
	for _, t := range s.todos {
		if t.UserID == userID {
			out = append(out, copyTodo(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CompleteTodosDueBefore marks pending todos due before cutoff as done
func (s *MemoryStore) CompleteTodosDueBefore(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.todos {
		if t.UserID != userID || t.Status != core.TodoStatusPending || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(cutoff) {
			t.Status = core.TodoStatusDone
			count++
		}
	}
	return count, nil
}

// UpsertUser creates or replaces a user record
func (s *MemoryStore) UpsertUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *user
	s.users[user.ID] = &c
	return nil
}

// ListUsers returns every user ordered by id
func (s *MemoryStore) ListUsers(ctx context.Context) ([]*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUser returns a user
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// IsCalendarDeliveryEnabled reports the user's delivery preference. Unknown users have it disabled.
func (s *MemoryStore) IsCalendarDeliveryEnabled(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	return u.CalendarDeliveryEnabled, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	s.logger.Debug("Closing memory store")
	return nil
}
