package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProcessEmailsIsIdempotent(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("%d emails", n), func(t *testing.T) {
			h := newHarness(t, nil)
			h.fetcher.emails = makeEmails(n)
			h.extractor.fn = func(emails []core.Email) (*core.Extraction, error) {
				var events []core.ExtractedEvent
				for i, e := range emails {
					events = append(events, core.ExtractedEvent{
						Title:         "Event for " + e.ID,
						Start:         upcoming(3, 8+i),
						SourceEmailID: e.ID,
					})
				}
				return &core.Extraction{Events: events}, nil
			}

			first, err := h.run(t)
			if err != nil {
				t.Fatal(err)
			}
			if first.EmailsProcessed != n || first.EmailsSkipped != 0 {
				t.Errorf("first run: processed=%d skipped=%d, want %d/0", first.EmailsProcessed, first.EmailsSkipped, n)
			}

			second, err := h.run(t)
			if err != nil {
				t.Fatal(err)
			}
			if second.EmailsProcessed != 0 || second.EmailsSkipped != n {
				t.Errorf("second run: processed=%d skipped=%d, want 0/%d", second.EmailsProcessed, second.EmailsSkipped, n)
			}
			if second.EventsCreated != 0 {
				t.Errorf("second run created %d events", second.EventsCreated)
			}
			if got := h.calendar.insertCount(); got != n {
				t.Errorf("expected %d calendar inserts, got %d", n, got)
			}
			wantCalls := 0
			if n > 0 {
				wantCalls = 1
			}
			if h.extractor.calls != wantCalls {
				t.Errorf("expected %d extractor calls, got %d", wantCalls, h.extractor.calls)
			}
		})
	}
}

func TestProcessEmailsSkipsLedgerEntries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.fetcher.emails = makeEmails(3)
	if err := h.repo.MarkProcessed(ctx, h.user.ID, "msg-1"); err != nil {
		t.Fatal(err)
	}

	due := upcoming(5, 0)
	h.extractor.fn = func(emails []core.Email) (*core.Extraction, error) {
		return &core.Extraction{
			Events: []core.ExtractedEvent{
				{Title: "Field trip", Start: upcoming(2, 9), SourceEmailID: "msg-2", Confidence: 0.9},
				{Title: "Parent evening", Start: upcoming(4, 18), SourceEmailID: "msg-3", Confidence: 0.8},
			},
			Todos: []core.ExtractedTodo{
				{Description: "Sign permission slip", Type: "form", DueDate: &due, SourceEmailID: "msg-2"},
			},
		}, nil
	}

	result, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Success {
		t.Errorf("expected success, errors: %v", result.Errors)
	}
	if result.EmailsProcessed != 2 || result.EmailsSkipped != 1 {
		t.Errorf("processed=%d skipped=%d, want 2/1", result.EmailsProcessed, result.EmailsSkipped)
	}
	if result.EventsCreated != 2 || result.TodosCreated != 1 {
		t.Errorf("events=%d todos=%d, want 2/1", result.EventsCreated, result.TodosCreated)
	}
	if result.EventsSynced != 2 || result.EventsFailed != 0 {
		t.Errorf("synced=%d failed=%d, want 2/0", result.EventsSynced, result.EventsFailed)
	}
	if result.EventsRemoved != 0 {
		t.Errorf("expected nothing swept, got %d", result.EventsRemoved)
	}

	if len(h.extractor.seen) != 1 || len(h.extractor.seen[0]) != 2 {
		t.Fatalf("extractor should see one batch of 2 emails, saw %v", h.extractor.seen)
	}
	for _, e := range h.extractor.seen[0] {
		if e.ID == "msg-1" {
			t.Error("already processed email was passed to the extractor")
		}
	}

	for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
		done, err := h.repo.IsProcessed(ctx, h.user.ID, id)
		if err != nil {
			t.Fatal(err)
		}
		if !done {
			t.Errorf("%s not in ledger", id)
		}
	}

	events, err := h.repo.ListEvents(ctx, h.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.SyncStatus != core.SyncStatusSynced || e.ExternalCalendarID == "" {
			t.Errorf("event %q: status=%s external=%q", e.Title, e.SyncStatus, e.ExternalCalendarID)
		}
	}
}

func TestProcessEmailsExtractionFailureLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.emails = makeEmails(2)
	h.extractor.fn = func([]core.Email) (*core.Extraction, error) {
		return nil, errors.New("model overloaded")
	}

	result, err := h.run(t)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !core.IsKind(err, core.KindExtraction) {
		t.Errorf("expected extraction error, got %v (%s)", err, core.KindOf(err))
	}
	if result.Success {
		t.Error("expected success=false")
	}
	if result.EmailsProcessed != 0 {
		t.Errorf("expected emails_processed=0, got %d", result.EmailsProcessed)
	}
	if len(result.Errors) == 0 {
		t.Error("expected the error to be recorded in the result")
	}

	for _, e := range h.fetcher.emails {
		done, err := h.repo.IsProcessed(context.Background(), h.user.ID, e.ID)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			t.Errorf("%s marked processed after failed extraction", e.ID)
		}
	}

	h.extractor.fn = nil
	retry, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	if retry.EmailsProcessed != 2 {
		t.Errorf("retry should reprocess both emails, processed %d", retry.EmailsProcessed)
	}
}

func TestProcessEmailsFetchFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = errors.New("token revoked")

	result, err := h.run(t)
	if !core.IsKind(err, core.KindFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if result.Success || result.EmailsFetched != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if h.extractor.calls != 0 {
		t.Error("extractor must not run after a fetch failure")
	}
}

func TestProcessEmailsUnknownProvider(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.emails = makeEmails(1)

	result, err := h.orchestrator.ProcessEmails(context.Background(), h.user.ID, h.user.AuthContext(), core.ProcessOptions{AIProvider: "missing"})
	if !core.IsKind(err, core.KindExtraction) || !errors.Is(err, core.ErrUnknownProvider) {
		t.Fatalf("expected unknown provider extraction error, got %v", err)
	}
	if result.EmailsProcessed != 0 {
		t.Errorf("expected emails_processed=0, got %d", result.EmailsProcessed)
	}
}

func TestProcessEmailsSweepsBeforeDelivery(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.emails = makeEmails(1)
	h.extractor.fn = func([]core.Email) (*core.Extraction, error) {
		return &core.Extraction{Events: []core.ExtractedEvent{
			{Title: "Last week's assembly", Start: time.Now().Add(-72 * time.Hour), SourceEmailID: "msg-1"},
			{Title: "Swimming gala", Start: upcoming(6, 14), SourceEmailID: "msg-1"},
		}}, nil
	}

	result, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsCreated != 2 || result.EventsRemoved != 1 {
		t.Errorf("created=%d removed=%d, want 2/1", result.EventsCreated, result.EventsRemoved)
	}
	if result.EventsSynced != 1 {
		t.Errorf("expected 1 synced event, got %d", result.EventsSynced)
	}
	if h.calendar.insertCount() != 1 || h.calendar.inserted[0].Title != "Swimming gala" {
		t.Errorf("unexpected inserts %+v", h.calendar.inserted)
	}

	events, err := h.repo.ListEvents(context.Background(), h.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Title != "Swimming gala" {
		t.Errorf("expected only the upcoming event to remain, got %d", len(events))
	}
}

func TestProcessEmailsDeliveryDisabled(t *testing.T) {
	h := newHarness(t, nil)
	h.user.CalendarDeliveryEnabled = false
	if err := h.repo.UpsertUser(context.Background(), h.user); err != nil {
		t.Fatal(err)
	}
	h.fetcher.emails = makeEmails(1)
	h.extractor.fn = func([]core.Email) (*core.Extraction, error) {
		return &core.Extraction{Events: []core.ExtractedEvent{
			{Title: "Bake sale", Start: upcoming(2, 10), SourceEmailID: "msg-1"},
		}}, nil
	}

	result, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	if result.EventsSynced != 0 || h.calendar.insertCount() != 0 {
		t.Error("nothing should be delivered when calendar delivery is disabled")
	}
	events, _ := h.repo.ListEvents(context.Background(), h.user.ID)
	if len(events) != 1 || events[0].SyncStatus != core.SyncStatusPending {
		t.Errorf("expected one pending event, got %+v", events)
	}
	done, _ := h.repo.IsProcessed(context.Background(), h.user.ID, "msg-1")
	if !done {
		t.Error("email should be marked processed even when delivery is skipped")
	}
}

func TestProcessEmailsDeliveryFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.emails = makeEmails(1)
	h.calendar.failures["Concert"] = -1
	h.extractor.fn = func([]core.Email) (*core.Extraction, error) {
		return &core.Extraction{Events: []core.ExtractedEvent{
			{Title: "Concert", Start: upcoming(3, 19), SourceEmailID: "msg-1"},
		}}, nil
	}

	result, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.EventsFailed != 1 {
		t.Errorf("success=%v failed=%d", result.Success, result.EventsFailed)
	}
	done, _ := h.repo.IsProcessed(context.Background(), h.user.ID, "msg-1")
	if !done {
		t.Error("email should be marked processed after a delivery failure")
	}
}

func TestProcessEmailsLogsSteps(t *testing.T) {
	obs, logs := observer.New(zap.InfoLevel)
	h := newHarness(t, zap.New(obs))
	h.fetcher.emails = makeEmails(1)
	h.extractor.fn = extractOne("Sports day", upcoming(3, 9))

	result, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}

	for _, step := range []string{"fetched", "skipped", "extracted", "persisted", "swept", "delivered", "marked"} {
		if n := logs.FilterField(zap.String("step", step)).Len(); n != 1 {
			t.Errorf("step %q logged %d times", step, n)
		}
	}
	tagged := logs.FilterField(zap.String("run_id", result.RunID)).FilterField(zap.String("user_id", "user-1"))
	if tagged.Len() < 8 {
		t.Errorf("expected every step to carry user_id and run_id, got %d entries", tagged.Len())
	}
}

func extractOne(title string, start time.Time) func([]core.Email) (*core.Extraction, error) {
	return func(emails []core.Email) (*core.Extraction, error) {
		return &core.Extraction{Events: []core.ExtractedEvent{
			{Title: title, Start: start, SourceEmailID: emails[0].ID},
		}}, nil
	}
}

func TestProcessEmailsPersistenceFailures(t *testing.T) {
	boom := errors.New("disk full")
	oneOfEach := func(emails []core.Email) (*core.Extraction, error) {
		return &core.Extraction{
			Events: []core.ExtractedEvent{{Title: "Harvest festival", Start: upcoming(3, 10), SourceEmailID: emails[0].ID}},
			Todos:  []core.ExtractedTodo{{Description: "Send tins", Type: "other", SourceEmailID: emails[0].ID}},
		}, nil
	}

	tests := []struct {
		name       string
		fail       func(s *failingStore)
		wantEvents int
		wantTodos  int
		wantSynced int
	}{
		{name: "check ledger", fail: func(s *failingStore) { s.isProcessedErr = boom }},
		{name: "insert events", fail: func(s *failingStore) { s.insertEventsErr = boom }},
		{name: "insert todos", fail: func(s *failingStore) { s.insertTodosErr = boom }, wantEvents: 1},
		{name: "mark processed", fail: func(s *failingStore) { s.markProcessedErr = boom }, wantEvents: 1, wantTodos: 1, wantSynced: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.fetcher.emails = makeEmails(1)
			h.extractor.fn = oneOfEach
			repo := &failingStore{MemoryStore: h.repo}
			tt.fail(repo)
			h.withStore(t, repo)

			result, err := h.run(t)
			if !core.IsKind(err, core.KindPersistence) || !errors.Is(err, boom) {
				t.Fatalf("expected persistence error, got %v (%s)", err, core.KindOf(err))
			}
			if result.Success || len(result.Errors) == 0 {
				t.Errorf("expected a failed result with errors, got %+v", result)
			}

			done, err := h.repo.IsProcessed(context.Background(), h.user.ID, "msg-1")
			if err != nil {
				t.Fatal(err)
			}
			if done {
				t.Error("email marked processed after a persistence failure")
			}

			events, _ := h.repo.ListEvents(context.Background(), h.user.ID)
			todos, _ := h.repo.ListTodos(context.Background(), h.user.ID)
			if len(events) != tt.wantEvents || len(todos) != tt.wantTodos {
				t.Errorf("stored %d events and %d todos, want %d and %d", len(events), len(todos), tt.wantEvents, tt.wantTodos)
			}
			if h.calendar.insertCount() != tt.wantSynced {
				t.Errorf("expected %d calendar inserts, got %d", tt.wantSynced, h.calendar.insertCount())
			}
		})
	}
}
