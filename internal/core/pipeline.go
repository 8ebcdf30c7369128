package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxResults = 50
	DefaultLookback   = 72 * time.Hour
)

// PipelineSettings are the run defaults applied when ProcessOptions leaves them empty
type PipelineSettings struct {
	MaxResults int
	MaxRetries int
	Lookback   time.Duration
}

// Orchestrator runs the fetch -> extract -> persist -> sweep -> deliver -> mark pipeline
type Orchestrator struct {
	fetcher    EmailFetcher
	extractors *ExtractorSet
	ledger     Ledger
	events     EventStore
	todos      TodoStore
	sweeper    *Sweeper
	delivery   *DeliveryEngine
	settings   DeliverySettings
	logger     *zap.Logger
	cfg        PipelineSettings
	now        func() time.Time
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(
	fetcher EmailFetcher,
	extractors *ExtractorSet,
	ledger Ledger,
	events EventStore,
	todos TodoStore,
	sweeper *Sweeper,
	delivery *DeliveryEngine,
	settings DeliverySettings,
	logger *zap.Logger,
	cfg PipelineSettings,
) *Orchestrator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	return &Orchestrator{
		fetcher:    fetcher,
		extractors: extractors,
		ledger:     ledger,
		events:     events,
		todos:      todos,
		sweeper:    sweeper,
		delivery:   delivery,
		settings:   settings,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ProcessEmails runs the pipeline once for a user. Fetch, extraction and persistence
// failures abort the run and are returned alongside a result with Success=false.
// Delivery failures are recorded on the events and never fail the run.
func (o *Orchestrator) ProcessEmails(ctx context.Context, userID string, auth AuthContext, opts ProcessOptions) (*ProcessingResult, error) {
	started := o.now()
	result := &ProcessingResult{
		RunID:  uuid.New().String(),
		Errors: []string{},
	}
	log := o.logger.With(zap.String("user_id", userID), zap.String("run_id", result.RunID))

	finish := func(err error) (*ProcessingResult, error) {
		result.ProcessingTimeMs = o.now().Sub(started).Milliseconds()
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			log.Error("Pipeline run failed",
				zap.String("kind", KindOf(err).String()),
				zap.Error(err))
			return result, err
		}
		result.Success = true
		log.Info("Pipeline run finished",
			zap.Int("emails_processed", result.EmailsProcessed),
			zap.Int("emails_skipped", result.EmailsSkipped),
			zap.Int("events_created", result.EventsCreated),
			zap.Int("todos_created", result.TodosCreated),
			zap.Int64("processing_time_ms", result.ProcessingTimeMs))
		return result, nil
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = o.cfg.MaxResults
	}
	dateRange := opts.DateRange
	if dateRange.From.IsZero() && dateRange.To.IsZero() {
		dateRange.From = started.Add(-o.cfg.Lookback)
	}

	// 1. fetch
	emails, err := o.fetcher.FetchEmails(ctx, auth, dateRange, maxResults)
	if err != nil {
		return finish(newPipelineError(KindFetch, "fetch_emails", userID, err))
	}
	if len(emails) > maxResults {
		emails = emails[:maxResults]
	}
	result.EmailsFetched = len(emails)
	log.Info("Fetched emails", zap.String("step", "fetched"), zap.Int("count", len(emails)))
	if len(emails) == 0 {
		return finish(nil)
	}

	// 2. filter by ledger
	pending := make([]Email, 0, len(emails))
	for _, email := range emails {
		done, err := o.ledger.IsProcessed(ctx, userID, email.ID)
		if err != nil {
			return finish(newPipelineError(KindPersistence, "check_ledger", userID, err))
		}
		if done {
			result.EmailsSkipped++
			continue
		}
		pending = append(pending, email)
	}
	result.EmailsProcessed = len(pending)
	log.Info("Filtered processed emails",
		zap.String("step", "skipped"),
		zap.Int("skipped", result.EmailsSkipped),
		zap.Int("remaining", len(pending)))
	if len(pending) == 0 {
		return finish(nil)
	}

	// 3. extract over the whole remaining batch
	extractor, err := o.extractors.Get(opts.AIProvider)
	if err != nil {
		result.EmailsProcessed = 0
		return finish(newPipelineError(KindExtraction, "select_extractor", userID, err))
	}
	extraction, err := extractor.Extract(ctx, pending, ExtractOptions{Timezone: auth.Timezone, Now: started})
	if err != nil {
		result.EmailsProcessed = 0
		return finish(newPipelineError(KindExtraction, "extract", userID, err))
	}
	log.Info("Extracted items",
		zap.String("step", "extracted"),
		zap.String("provider", opts.AIProvider),
		zap.Int("events", len(extraction.Events)),
		zap.Int("todos", len(extraction.Todos)))

	// 4. persist
	events := o.buildEvents(userID, extraction.Events, started)
	todos := o.buildTodos(userID, extraction.Todos, started)
	if len(events) > 0 {
		if err := o.events.InsertEvents(ctx, events); err != nil {
			return finish(newPipelineError(KindPersistence, "insert_events", userID, err))
		}
	}
	result.EventsCreated = len(events)
	if len(todos) > 0 {
		if err := o.todos.InsertTodos(ctx, todos); err != nil {
			return finish(newPipelineError(KindPersistence, "insert_todos", userID, err))
		}
	}
	result.TodosCreated = len(todos)
	log.Info("Persisted items",
		zap.String("step", "persisted"),
		zap.Int("events", len(events)),
		zap.Int("todos", len(todos)))

	// 5. sweep before delivery
	swept := make(map[string]bool)
	cleanup, err := o.sweeper.CleanupPastItems(ctx, userID)
	if err != nil {
		log.Warn("Sweep failed, continuing without exclusions", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
	} else {
		for _, id := range cleanup.EventIDs {
			swept[id] = true
		}
		result.EventsRemoved = cleanup.EventsRemoved
		result.TodosCompleted = cleanup.TodosCompleted
		log.Info("Swept past items",
			zap.String("step", "swept"),
			zap.Int("events_removed", cleanup.EventsRemoved),
			zap.Int("todos_completed", cleanup.TodosCompleted))
	}

	// 6. deliver the surviving batch
	batch := make([]*StoredEvent, 0, len(events))
	for _, event := range events {
		if !swept[event.ID] {
			batch = append(batch, event)
		}
	}
	enabled, err := o.settings.IsCalendarDeliveryEnabled(ctx, userID)
	if err != nil {
		log.Warn("Could not read calendar delivery setting, skipping delivery", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
		enabled = false
	}
	switch {
	case !enabled:
		log.Info("Calendar delivery disabled, leaving events pending",
			zap.String("step", "delivered"),
			zap.Int("pending", len(batch)))
	case len(batch) > 0:
		sync := o.delivery.DeliverEvents(ctx, auth, batch, o.cfg.MaxRetries)
		result.EventsSynced = sync.Synced
		result.EventsFailed = sync.Failed
		log.Info("Delivered events",
			zap.String("step", "delivered"),
			zap.Int("synced", sync.Synced),
			zap.Int("failed", sync.Failed))
	}

	// 7. mark processed regardless of delivery outcome
	for _, email := range pending {
		if err := o.ledger.MarkProcessed(ctx, userID, email.ID); err != nil {
			return finish(newPipelineError(KindPersistence, "mark_processed", userID, err))
		}
	}
	log.Info("Marked emails processed", zap.String("step", "marked"), zap.Int("count", len(pending)))

	return finish(nil)
}

func (o *Orchestrator) buildEvents(userID string, extracted []ExtractedEvent, now time.Time) []*StoredEvent {
	events := make([]*StoredEvent, 0, len(extracted))
	for _, ev := range extracted {
		events = append(events, &StoredEvent{
			ID:            uuid.New().String(),
			UserID:        userID,
			Title:         ev.Title,
			Start:         ev.Start,
			End:           ev.End,
			Description:   ev.Description,
			Location:      ev.Location,
			ChildName:     ev.ChildName,
			Confidence:    ev.Confidence,
			SourceEmailID: ev.SourceEmailID,
			SyncStatus:    SyncStatusPending,
			RetryCount:    0,
			CreatedAt:     now,
		})
	}
	return events
}

func (o *Orchestrator) buildTodos(userID string, extracted []ExtractedTodo, now time.Time) []*StoredTodo {
	todos := make([]*StoredTodo, 0, len(extracted))
	for _, td := range extracted {
		todos = append(todos, &StoredTodo{
			ID:            uuid.New().String(),
			UserID:        userID,
			Description:   td.Description,
			Type:          td.Type,
			DueDate:       td.DueDate,
			Status:        TodoStatusPending,
			SourceEmailID: td.SourceEmailID,
			CreatedAt:     now,
		})
	}
	return todos
}
