package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the delivery attempt ceiling per event
	DefaultMaxRetries = 3
	// DefaultClaimTimeout is how long an in_progress claim is honoured before it is requeued
	DefaultClaimTimeout = 10 * time.Minute

	listWindowPadding = 24 * time.Hour
)

// DeliveryEngine pushes pending and failed events to the external calendar
type DeliveryEngine struct {
	events       EventStore
	sweeper      *Sweeper
	calendar     CalendarClient
	dedup        *Deduplicator
	notifier     FailureNotifier
	logger       *zap.Logger
	backoff      Backoff
	claimTimeout time.Duration
	now          func() time.Time
}

// NewDeliveryEngine creates a new delivery engine. sweeper and notifier may be nil;
// without a sweeper no staleness check is made before delivery.
func NewDeliveryEngine(
	events EventStore,
	sweeper *Sweeper,
	calendar CalendarClient,
	dedup *Deduplicator,
	notifier FailureNotifier,
	logger *zap.Logger,
	backoff Backoff,
	claimTimeout time.Duration,
) *DeliveryEngine {
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &DeliveryEngine{
		events:       events,
		sweeper:      sweeper,
		calendar:     calendar,
		dedup:        dedup,
		notifier:     notifier,
		logger:       logger,
		backoff:      backoff,
		claimTimeout: claimTimeout,
		now:          time.Now,
	}
}

// Backoff returns the advisory retry policy
func (e *DeliveryEngine) Backoff() Backoff {
	return e.backoff
}

// SyncPendingEventsForUser sweeps the user's past items and then delivers every pending
// or failed event whose retry_count is below maxRetries. Delivery failures are recorded
// on the events, not returned.
func (e *DeliveryEngine) SyncPendingEventsForUser(ctx context.Context, userID string, auth AuthContext, maxRetries int) (*SyncResult, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	requeued, err := e.events.RequeueStaleClaims(ctx, userID, e.now().Add(-e.claimTimeout))
	if err != nil {
		return nil, newPipelineError(KindPersistence, "requeue_stale_claims", userID, err)
	}
	if requeued > 0 {
		e.logger.Warn("Requeued abandoned delivery claims",
			zap.String("user_id", userID),
			zap.Int("count", requeued))
	}

	if e.sweeper != nil {
		if _, err := e.sweeper.CleanupPastItems(ctx, userID); err != nil {
			// DeliverEvents still skips stale events
			e.logger.Warn("Sweep before delivery failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	events, err := e.events.ListDeliverableEvents(ctx, userID, maxRetries)
	if err != nil {
		return nil, newPipelineError(KindPersistence, "list_deliverable_events", userID, err)
	}

	return e.DeliverEvents(ctx, auth, events, maxRetries), nil
}

// DeliverEvents attempts delivery of the given events. Each event is claimed first so
// concurrent passes never deliver the same event twice. Events that started longer
// ago than the sweep threshold are skipped.
func (e *DeliveryEngine) DeliverEvents(ctx context.Context, auth AuthContext, events []*StoredEvent, maxRetries int) *SyncResult {
	result := &SyncResult{}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	if e.sweeper != nil {
		now := e.now()
		current := make([]*StoredEvent, 0, len(events))
		for _, event := range events {
			if e.sweeper.IsStale(event, now) {
				e.logger.Debug("Event already past, skipping",
					zap.String("user_id", auth.UserID),
					zap.String("event_id", event.ID))
				result.Skipped++
				continue
			}
			current = append(current, event)
		}
		events = current
	}
	if len(events) == 0 {
		return result
	}

	loc := auth.Location()
	window := listWindow(events)

	var (
		existing  []ExistingEvent
		listed    bool
		listErr   error
		exhausted []*StoredEvent
	)

	for _, event := range events {
		claimed, err := e.events.ClaimEvent(ctx, event.ID, maxRetries, e.now())
		if err != nil {
			e.logger.Error("Failed to claim event",
				zap.String("user_id", auth.UserID),
				zap.String("event_id", event.ID),
				zap.Error(err))
			result.Skipped++
			continue
		}
		if !claimed {
			e.logger.Debug("Event no longer deliverable, skipping",
				zap.String("user_id", auth.UserID),
				zap.String("event_id", event.ID))
			result.Skipped++
			continue
		}
		result.Processed++

		if !listed {
			existing, listErr = e.calendar.List(ctx, auth, window)
			listed = true
		}
		if listErr != nil {
			if e.fail(ctx, event, listErr, maxRetries) {
				exhausted = append(exhausted, event)
			}
			result.Failed++
			continue
		}

		if match, ok := e.dedup.FindDuplicate(existing, event, loc); ok {
			if e.markSynced(ctx, event, match.ID) {
				result.Synced++
				result.Duplicates++
			}
			continue
		}

		externalID, err := e.calendar.Insert(ctx, auth, event)
		if err != nil {
			if e.fail(ctx, event, err, maxRetries) {
				exhausted = append(exhausted, event)
			}
			result.Failed++
			continue
		}
		existing = append(existing, ExistingEvent{ID: externalID, Title: event.Title, Start: event.Start})
		if e.markSynced(ctx, event, externalID) {
			result.Synced++
		}
	}

	if len(exhausted) > 0 && e.notifier != nil {
		if err := e.notifier.NotifyExhausted(ctx, auth.UserID, exhausted); err != nil {
			e.logger.Error("Failed to notify about exhausted events",
				zap.String("user_id", auth.UserID),
				zap.Int("count", len(exhausted)),
				zap.Error(err))
		}
	}

	e.logger.Info("Delivery pass finished",
		zap.String("user_id", auth.UserID),
		zap.Int("processed", result.Processed),
		zap.Int("synced", result.Synced),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))

	return result
}

// markSynced records a successful delivery. A store failure leaves the claim in place;
// it is requeued after the claim timeout and the deduplicator absorbs the retry.
func (e *DeliveryEngine) markSynced(ctx context.Context, event *StoredEvent, externalID string) bool {
	now := e.now()
	if err := e.events.MarkEventSynced(ctx, event.ID, externalID, now); err != nil {
		e.logger.Error("Failed to mark event synced",
			zap.String("event_id", event.ID),
			zap.String("external_id", externalID),
			zap.Error(err))
		return false
	}
	event.SyncStatus = SyncStatusSynced
	event.ExternalCalendarID = externalID
	event.SyncError = ""
	event.LastAttemptAt = &now
	return true
}

// fail records a delivery error and reports whether the event is now exhausted
func (e *DeliveryEngine) fail(ctx context.Context, event *StoredEvent, cause error, maxRetries int) bool {
	deliveryErr := newPipelineError(KindDelivery, "calendar_insert", event.UserID, cause)
	now := e.now()
	if err := e.events.MarkEventFailed(ctx, event.ID, cause.Error(), now); err != nil {
		e.logger.Error("Failed to mark event failed",
			zap.String("event_id", event.ID),
			zap.NamedError("delivery_error", deliveryErr),
			zap.Error(err))
		return false
	}
	event.SyncStatus = SyncStatusFailed
	event.SyncError = cause.Error()
	event.RetryCount++
	event.LastAttemptAt = &now

	e.logger.Warn("Event delivery failed",
		zap.String("user_id", event.UserID),
		zap.String("event_id", event.ID),
		zap.Int("retry_count", event.RetryCount),
		zap.Duration("next_attempt_in", e.backoff.Delay(event.RetryCount)),
		zap.Error(deliveryErr))

	return event.RetryCount >= maxRetries
}

// listWindow covers every candidate start with a day of padding on each side
func listWindow(events []*StoredEvent) TimeWindow {
	start, end := events[0].Start, events[0].Start
	for _, ev := range events[1:] {
		if ev.Start.Before(start) {
			start = ev.Start
		}
		if ev.Start.After(end) {
			end = ev.Start
		}
	}
	return TimeWindow{Start: start.Add(-listWindowPadding), End: end.Add(listWindowPadding)}
}
