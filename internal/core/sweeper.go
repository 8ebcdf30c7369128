package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepThreshold is how far in the past an event must start before it is removed
const DefaultSweepThreshold = 24 * time.Hour

// Sweeper removes stale events and auto-completes past-due todos
type Sweeper struct {
	events    EventStore
	todos     TodoStore
	logger     *zap.Logger
	threshold  time.Duration
	maxRetries int
	now        func() time.Time
}

// NewSweeper creates a new sweeper. Failed events that reached maxRetries are
// never swept so they stay visible for inspection.
func NewSweeper(events EventStore, todos TodoStore, logger *zap.Logger, threshold time.Duration, maxRetries int) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultSweepThreshold
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Sweeper{
		events:     events,
		todos:      todos,
		logger:     logger,
		threshold:  threshold,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// IsStale reports whether an event started more than the threshold before now
func (s *Sweeper) IsStale(event *StoredEvent, now time.Time) bool {
	return event.Start.Before(now.Add(-s.threshold))
}

// CleanupPastItems deletes events that started more than the threshold ago and marks
// past-due todos done. The removed event ids are returned so callers can drop them
// from a delivery batch already staged in memory.
func (s *Sweeper) CleanupPastItems(ctx context.Context, userID string) (*CleanupResult, error) {
	now := s.now()

	completed, err := s.todos.CompleteTodosDueBefore(ctx, userID, now)
	if err != nil {
		return nil, newPipelineError(KindPersistence, "complete_todos", userID, err)
	}

	removed, err := s.events.DeleteEventsStartingBefore(ctx, userID, now.Add(-s.threshold), s.maxRetries)
	if err != nil {
		return nil, newPipelineError(KindPersistence, "delete_events", userID, err)
	}

	if completed > 0 || len(removed) > 0 {
		s.logger.Info("Swept past items",
			zap.String("user_id", userID),
			zap.Int("todos_completed", completed),
			zap.Int("events_removed", len(removed)))
	}

	if removed == nil {
		removed = []string{}
	}
	return &CleanupResult{
		TodosCompleted: completed,
		EventsRemoved:  len(removed),
		EventIDs:       removed,
	}, nil
}
