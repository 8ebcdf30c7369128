package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher struct {
	emails []core.Email
	err    error
	calls  int
}

func (f *fakeFetcher) FetchEmails(ctx context.Context, auth core.AuthContext, dateRange core.DateRange, maxResults int) ([]core.Email, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.emails, nil
}

type fakeExtractor struct {
	fn    func(emails []core.Email) (*core.Extraction, error)
	calls int
	seen  [][]core.Email
}

func (f *fakeExtractor) Extract(ctx context.Context, emails []core.Email, opts core.ExtractOptions) (*core.Extraction, error) {
	f.calls++
	f.seen = append(f.seen, emails)
	if f.fn == nil {
		return &core.Extraction{}, nil
	}
	return f.fn(emails)
}

type fakeCalendar struct {
	mu       sync.Mutex
	existing []core.ExistingEvent
	inserted []core.StoredEvent
	// failures maps a title to how many inserts of it should fail; -1 fails forever
	failures map[string]int
	listErr  error
	lists    int
	nextID   int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{failures: make(map[string]int)}
}

func (c *fakeCalendar) Insert(ctx context.Context, auth core.AuthContext, event *core.StoredEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.failures[event.Title]; ok && n != 0 {
		if n > 0 {
			c.failures[event.Title] = n - 1
		}
		return "", errors.New("calendar unavailable")
	}
	c.nextID++
	id := fmt.Sprintf("ext-%d", c.nextID)
	c.inserted = append(c.inserted, *event)
	c.existing = append(c.existing, core.ExistingEvent{ID: id, Title: event.Title, Start: event.Start})
	return id, nil
}

func (c *fakeCalendar) List(ctx context.Context, auth core.AuthContext, window core.TimeWindow) ([]core.ExistingEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lists++
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []core.ExistingEvent
	for _, e := range c.existing {
		if !e.Start.Before(window.Start) && !e.Start.After(window.End) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCalendar) insertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inserted)
}

type fakeNotifier struct {
	batches [][]*core.StoredEvent
}

func (n *fakeNotifier) NotifyExhausted(ctx context.Context, userID string, events []*core.StoredEvent) error {
	n.batches = append(n.batches, events)
	return nil
}

type harness struct {
	repo         *store.MemoryStore
	fetcher      *fakeFetcher
	extractor    *fakeExtractor
	calendar     *fakeCalendar
	notifier     *fakeNotifier
	delivery     *core.DeliveryEngine
	sweeper      *core.Sweeper
	orchestrator *core.Orchestrator
	user         *core.User
}

func newHarness(t *testing.T, logger *zap.Logger) *harness {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}

	h := &harness{
		repo:      store.NewMemoryStore(logger),
		fetcher:   &fakeFetcher{},
		extractor: &fakeExtractor{},
		calendar:  newFakeCalendar(),
		notifier:  &fakeNotifier{},
		user: &core.User{
			ID:                      "user-1",
			Email:                   "parent@example.com",
			Timezone:                "UTC",
			CalendarDeliveryEnabled: true,
		},
	}
	if err := h.repo.UpsertUser(context.Background(), h.user); err != nil {
		t.Fatal(err)
	}

	h.sweeper = core.NewSweeper(h.repo, h.repo, logger, core.DefaultSweepThreshold, 3)
	h.delivery = core.NewDeliveryEngine(h.repo, h.sweeper, h.calendar, core.NewDeduplicator(logger), h.notifier, logger, core.DefaultBackoff(), core.DefaultClaimTimeout)
	extractors := core.NewExtractorSet("fake", map[string]core.Extractor{"fake": h.extractor})
	h.orchestrator = core.NewOrchestrator(h.fetcher, extractors, h.repo, h.repo, h.repo, h.sweeper, h.delivery, h.repo, logger, core.PipelineSettings{MaxRetries: 3})
	return h
}

func (h *harness) run(t *testing.T) (*core.ProcessingResult, error) {
	t.Helper()
	return h.orchestrator.ProcessEmails(context.Background(), h.user.ID, h.user.AuthContext(), core.ProcessOptions{})
}

func (h *harness) insertEvents(t *testing.T, events ...*core.StoredEvent) {
	t.Helper()
	for _, e := range events {
		if e.UserID == "" {
			e.UserID = h.user.ID
		}
		if e.SyncStatus == "" {
			e.SyncStatus = core.SyncStatusPending
		}
	}
	if err := h.repo.InsertEvents(context.Background(), events); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) event(t *testing.T, id string) *core.StoredEvent {
	t.Helper()
	e, err := h.repo.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEvent(%s): %v", id, err)
	}
	return e
}

func makeEmails(n int) []core.Email {
	emails := make([]core.Email, n)
	for i := range emails {
		emails[i] = core.Email{
			ID:      fmt.Sprintf("msg-%d", i+1),
			From:    "school@example.org",
			Subject: fmt.Sprintf("Notice %d", i+1),
			Date:    time.Now().Add(-time.Duration(i) * time.Hour),
			Body:    "body",
		}
	}
	return emails
}

// upcoming returns a time n days ahead at the given UTC hour
func upcoming(days, hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// failingStore wraps the memory store and fails the configured operations
type failingStore struct {
	*store.MemoryStore
	isProcessedErr   error
	markProcessedErr error
	insertEventsErr  error
	insertTodosErr   error
}

func (s *failingStore) IsProcessed(ctx context.Context, userID, emailID string) (bool, error) {
	if s.isProcessedErr != nil {
		return false, s.isProcessedErr
	}
	return s.MemoryStore.IsProcessed(ctx, userID, emailID)
}

func (s *failingStore) MarkProcessed(ctx context.Context, userID, emailID string) error {
	if s.markProcessedErr != nil {
		return s.markProcessedErr
	}
	return s.MemoryStore.MarkProcessed(ctx, userID, emailID)
}

func (s *failingStore) InsertEvents(ctx context.Context, events []*core.StoredEvent) error {
	if s.insertEventsErr != nil {
		return s.insertEventsErr
	}
	return s.MemoryStore.InsertEvents(ctx, events)
}

func (s *failingStore) InsertTodos(ctx context.Context, todos []*core.StoredTodo) error {
	if s.insertTodosErr != nil {
		return s.insertTodosErr
	}
	return s.MemoryStore.InsertTodos(ctx, todos)
}

// withStore rebuilds the orchestrator on top of repo
func (h *harness) withStore(t *testing.T, repo *failingStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	extractors := core.NewExtractorSet("fake", map[string]core.Extractor{"fake": h.extractor})
	h.orchestrator = core.NewOrchestrator(h.fetcher, extractors, repo, repo, repo, h.sweeper, h.delivery, repo, logger, core.PipelineSettings{MaxRetries: 3})
}
