package core

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{5, 32 * time.Minute},
		{6, time.Hour},
		{50, time.Hour},
		{5000, time.Hour},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestBackoffDelayIsMonotonicAndCapped(t *testing.T) {
	for _, b := range []Backoff{DefaultBackoff(), {Base: 3 * time.Second, Cap: 10 * time.Minute}, {Base: time.Hour, Cap: time.Hour}} {
		prev := time.Duration(0)
		for r := 0; r <= 2000; r++ {
			d := b.Delay(r)
			if d < prev {
				t.Fatalf("%+v: Delay(%d)=%v < Delay(%d)=%v", b, r, d, r-1, prev)
			}
			if d > b.Cap {
				t.Fatalf("%+v: Delay(%d)=%v exceeds cap", b, r, d)
			}
			prev = d
		}
	}
}

func TestBackoffNextAttemptAt(t *testing.T) {
	b := DefaultBackoff()
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := &StoredEvent{SyncStatus: SyncStatusPending}
	if !b.NextAttemptAt(pending).IsZero() {
		t.Error("pending events should be due immediately")
	}
	if !b.IsDue(pending, last) {
		t.Error("pending event not due")
	}

	failed := &StoredEvent{SyncStatus: SyncStatusFailed, RetryCount: 1, LastAttemptAt: &last}
	if got := b.NextAttemptAt(failed); !got.Equal(last.Add(2 * time.Minute)) {
		t.Errorf("after first failure next attempt = %v", got)
	}
	failed.RetryCount = 3
	if got := b.NextAttemptAt(failed); !got.Equal(last.Add(8 * time.Minute)) {
		t.Errorf("after third failure next attempt = %v", got)
	}
	if b.IsDue(failed, last.Add(7*time.Minute)) {
		t.Error("event due before its delay elapsed")
	}
	if !b.IsDue(failed, last.Add(8*time.Minute)) {
		t.Error("event not due once its delay elapsed")
	}

	noAttempt := &StoredEvent{SyncStatus: SyncStatusFailed, RetryCount: 1}
	if !b.IsDue(noAttempt, last) {
		t.Error("failed event without an attempt time should be due")
	}
}
