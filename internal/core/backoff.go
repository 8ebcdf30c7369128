package core

import (
	"math"
	"time"
)

const (
	DefaultBackoffBase = time.Minute
	DefaultBackoffCap  = time.Hour
)

// Backoff computes advisory delays between delivery attempts. Nothing in the
// core sleeps on these values; schedulers use them to decide when to run again.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff returns the 1 minute base, 1 hour cap policy
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap}
}

// Delay returns min(Base * 2^retryCount, Cap)
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(b.Base) * math.Pow(2, float64(retryCount))
	if delay >= float64(b.Cap) || math.IsInf(delay, 1) {
		return b.Cap
	}
	return time.Duration(delay)
}

// NextAttemptAt returns LastAttemptAt + Delay(RetryCount) for failed events, so the
// first failure waits 2*Base. Pending events are due immediately.
func (b Backoff) NextAttemptAt(event *StoredEvent) time.Time {
	if event.SyncStatus != SyncStatusFailed || event.LastAttemptAt == nil {
		return time.Time{}
	}
	return event.LastAttemptAt.Add(b.Delay(event.RetryCount))
}

// IsDue reports whether the event's advisory delay has elapsed
func (b Backoff) IsDue(event *StoredEvent, now time.Time) bool {
	return !now.Before(b.NextAttemptAt(event))
}
