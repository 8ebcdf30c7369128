package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"go.uber.org/zap/zaptest"
)

func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository {
			return NewMemoryStore(zaptest.NewLogger(t))
		},
		"sqlite": func(t *testing.T) Repository {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "inbox.db"), zaptest.NewLogger(t))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo Repository)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer repo.Close()
			fn(t, repo)
		})
	}
}

func at(hour int) time.Time {
	return time.Date(2026, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestLedger(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		done, err := repo.IsProcessed(ctx, "u1", "m1")
		if err != nil || done {
			t.Fatalf("fresh ledger: done=%v err=%v", done, err)
		}
		for i := 0; i < 2; i++ {
			if err := repo.MarkProcessed(ctx, "u1", "m1"); err != nil {
				t.Fatalf("mark %d: %v", i, err)
			}
		}
		if done, _ := repo.IsProcessed(ctx, "u1", "m1"); !done {
			t.Error("email not recorded")
		}
		if done, _ := repo.IsProcessed(ctx, "u2", "m1"); done {
			t.Error("ledger entries leaked across users")
		}
	})
}

func TestEventRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		end := at(11)
		in := &core.StoredEvent{
			ID: "e1", UserID: "u1", Title: "Sports day", Start: at(9), End: &end,
			Description: "Bring water", Location: "Field", ChildName: "Sam", Confidence: 0.75,
			SourceEmailID: "m1", SyncStatus: core.SyncStatusPending, CreatedAt: at(8),
		}
		if err := repo.InsertEvents(ctx, []*core.StoredEvent{in}); err != nil {
			t.Fatal(err)
		}

		got, err := repo.GetEvent(ctx, "e1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Title != in.Title || !got.Start.Equal(in.Start) || got.End == nil || !got.End.Equal(end) {
			t.Errorf("round trip mismatch: %+v", got)
		}
		if got.ChildName != "Sam" || got.Confidence != 0.75 || got.SyncStatus != core.SyncStatusPending {
			t.Errorf("round trip mismatch: %+v", got)
		}

		if _, err := repo.GetEvent(ctx, "missing"); !errors.Is(err, core.ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestDeliveryStateMachine(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		events := []*core.StoredEvent{
			{ID: "e1", UserID: "u1", Title: "A", Start: at(9), SyncStatus: core.SyncStatusPending},
			{ID: "e2", UserID: "u1", Title: "B", Start: at(10), SyncStatus: core.SyncStatusFailed, RetryCount: 3, SyncError: "x"},
			{ID: "e3", UserID: "u1", Title: "C", Start: at(8), SyncStatus: core.SyncStatusFailed, RetryCount: 1, SyncError: "x"},
			{ID: "e4", UserID: "u2", Title: "D", Start: at(9), SyncStatus: core.SyncStatusPending},
		}
		if err := repo.InsertEvents(ctx, events); err != nil {
			t.Fatal(err)
		}

		deliverable, err := repo.ListDeliverableEvents(ctx, "u1", 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(deliverable) != 2 || deliverable[0].ID != "e3" || deliverable[1].ID != "e1" {
			t.Fatalf("expected [e3 e1] ordered by start, got %v", ids(deliverable))
		}

		now := at(12)
		ok, err := repo.ClaimEvent(ctx, "e1", 3, now)
		if err != nil || !ok {
			t.Fatalf("first claim: ok=%v err=%v", ok, err)
		}
		if ok, _ := repo.ClaimEvent(ctx, "e1", 3, now); ok {
			t.Error("event claimed twice")
		}
		if ok, _ := repo.ClaimEvent(ctx, "e2", 3, now); ok {
			t.Error("exhausted event claimed")
		}
		if ok, _ := repo.ClaimEvent(ctx, "missing", 3, now); ok {
			t.Error("missing event claimed")
		}

		if err := repo.MarkEventSynced(ctx, "e1", "ext-1", now); err != nil {
			t.Fatal(err)
		}
		e1, _ := repo.GetEvent(ctx, "e1")
		if e1.SyncStatus != core.SyncStatusSynced || e1.ExternalCalendarID != "ext-1" || e1.ClaimedAt != nil {
			t.Errorf("after sync: %+v", e1)
		}
		if ok, _ := repo.ClaimEvent(ctx, "e1", 3, now); ok {
			t.Error("synced event claimed")
		}
		if err := repo.MarkEventFailed(ctx, "e1", "late failure", now); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition leaving synced, got %v", err)
		}

		if _, err := repo.ClaimEvent(ctx, "e3", 3, now); err != nil {
			t.Fatal(err)
		}
		if err := repo.MarkEventFailed(ctx, "e3", "503", now); err != nil {
			t.Fatal(err)
		}
		e3, _ := repo.GetEvent(ctx, "e3")
		if e3.SyncStatus != core.SyncStatusFailed || e3.RetryCount != 2 || e3.SyncError != "503" {
			t.Errorf("after failure: %+v", e3)
		}
		if e3.LastAttemptAt == nil || !e3.LastAttemptAt.Equal(now) {
			t.Errorf("last_attempt_at = %v", e3.LastAttemptAt)
		}

		if err := repo.MarkEventSynced(ctx, "missing", "x", now); !errors.Is(err, core.ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestRequeueStaleClaims(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		err := repo.InsertEvents(ctx, []*core.StoredEvent{
			{ID: "old", UserID: "u1", Title: "A", Start: at(9), SyncStatus: core.SyncStatusPending},
			{ID: "fresh", UserID: "u1", Title: "B", Start: at(9), SyncStatus: core.SyncStatusPending},
		})
		if err != nil {
			t.Fatal(err)
		}
		repo.ClaimEvent(ctx, "old", 3, at(1))
		repo.ClaimEvent(ctx, "fresh", 3, at(5))

		n, err := repo.RequeueStaleClaims(ctx, "u1", at(3))
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 requeued claim, got %d", n)
		}
		old, _ := repo.GetEvent(ctx, "old")
		fresh, _ := repo.GetEvent(ctx, "fresh")
		if old.SyncStatus != core.SyncStatusPending || old.ClaimedAt != nil {
			t.Errorf("old claim not requeued: %+v", old)
		}
		if fresh.SyncStatus != core.SyncStatusInProgress {
			t.Errorf("fresh claim requeued: %+v", fresh)
		}
	})
}

func TestDeleteEventsStartingBefore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		err := repo.InsertEvents(ctx, []*core.StoredEvent{
			{ID: "a", UserID: "u1", Title: "A", Start: at(1), SyncStatus: core.SyncStatusPending},
			{ID: "b", UserID: "u1", Title: "B", Start: at(2), SyncStatus: core.SyncStatusSynced, ExternalCalendarID: "x"},
			{ID: "c", UserID: "u1", Title: "C", Start: at(3), SyncStatus: core.SyncStatusPending},
			{ID: "d", UserID: "u1", Title: "D", Start: at(20), SyncStatus: core.SyncStatusPending},
			{ID: "e", UserID: "u2", Title: "E", Start: at(1), SyncStatus: core.SyncStatusPending},
			{ID: "f", UserID: "u1", Title: "F", Start: at(1), SyncStatus: core.SyncStatusFailed, RetryCount: 3, SyncError: "gone"},
			{ID: "g", UserID: "u1", Title: "G", Start: at(1), SyncStatus: core.SyncStatusFailed, RetryCount: 1, SyncError: "busy"},
		})
		if err != nil {
			t.Fatal(err)
		}
		repo.ClaimEvent(ctx, "c", 3, at(4))

		removed, err := repo.DeleteEventsStartingBefore(ctx, "u1", at(10), 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(removed) != 3 || removed[0] != "a" || removed[1] != "b" || removed[2] != "g" {
			t.Errorf("expected [a b g], got %v", removed)
		}
		left, _ := repo.ListEvents(ctx, "u1")
		got := ids(left)
		sort.Strings(got)
		if len(got) != 3 || got[0] != "c" || got[1] != "d" || got[2] != "f" {
			t.Errorf("expected [c d f] to remain, got %v", got)
		}
		if f, err := repo.GetEvent(ctx, "f"); err != nil || f.RetryCount != 3 {
			t.Errorf("exhausted event should stay queryable: %+v, %v", f, err)
		}
	})
}

func TestTodos(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		past, future := at(1), at(20)
		err := repo.InsertTodos(ctx, []*core.StoredTodo{
			{ID: "t1", UserID: "u1", Description: "Pay", Type: "payment", DueDate: &past, Status: core.TodoStatusPending, SourceEmailID: "m1"},
			{ID: "t2", UserID: "u1", Description: "Form", Type: "form", DueDate: &future, Status: core.TodoStatusPending, SourceEmailID: "m1"},
			{ID: "t3", UserID: "u1", Description: "Reply", Type: "reply", Status: core.TodoStatusPending, SourceEmailID: "m2"},
		})
		if err != nil {
			t.Fatal(err)
		}

		n, err := repo.CompleteTodosDueBefore(ctx, "u1", at(10))
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 completed todo, got %d", n)
		}
		if n, _ := repo.CompleteTodosDueBefore(ctx, "u1", at(10)); n != 0 {
			t.Errorf("completed todos counted twice: %d", n)
		}

		todos, err := repo.ListTodos(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(todos) != 3 {
			t.Fatalf("expected 3 todos, got %d", len(todos))
		}
		for _, td := range todos {
			if (td.ID == "t1") != (td.Status == core.TodoStatusDone) {
				t.Errorf("todo %s has status %s", td.ID, td.Status)
			}
			if td.ID == "t3" && td.DueDate != nil {
				t.Error("todo without due date gained one")
			}
		}
	})
}

func TestUsers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		enabled, err := repo.IsCalendarDeliveryEnabled(ctx, "ghost")
		if err != nil || enabled {
			t.Errorf("unknown user: enabled=%v err=%v", enabled, err)
		}
		if _, err := repo.GetUser(ctx, "ghost"); !errors.Is(err, core.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}

		u := &core.User{ID: "u1", Email: "a@example.com", Timezone: "Europe/London", CalendarDeliveryEnabled: true,
			Token: core.OAuthToken{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: at(23)}}
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		if enabled, _ := repo.IsCalendarDeliveryEnabled(ctx, "u1"); !enabled {
			t.Error("delivery should be enabled")
		}

		u.CalendarDeliveryEnabled = false
		u.CalendarID = "family"
		if err := repo.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		got, err := repo.GetUser(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if got.CalendarDeliveryEnabled || got.CalendarID != "family" || got.Token.RefreshToken != "rt" || !got.Token.Expiry.Equal(at(23)) {
			t.Errorf("upsert did not replace the record: %+v", got)
		}

		repo.UpsertUser(ctx, &core.User{ID: "u0", Email: "b@example.com"})
		users, err := repo.ListUsers(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 2 || users[0].ID != "u0" {
			t.Errorf("expected users ordered by id, got %v", users)
		}
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()
	ev := &core.StoredEvent{ID: "e1", UserID: "u1", Start: at(9), SyncStatus: core.SyncStatusPending}
	s.InsertEvents(ctx, []*core.StoredEvent{ev})

	ev.Title = "mutated"
	got, _ := s.GetEvent(ctx, "e1")
	got.SyncStatus = core.SyncStatusSynced

	again, _ := s.GetEvent(ctx, "e1")
	if again.Title != "" || again.SyncStatus != core.SyncStatusPending {
		t.Errorf("store shares memory with callers: %+v", again)
	}
}

func TestDollarPlaceholders(t *testing.T) {
	got := dollarPlaceholders("UPDATE t SET a = ? WHERE id = ? AND n < ?")
	want := "UPDATE t SET a = $1 WHERE id = $2 AND n < $3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func ids(events []*core.StoredEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
