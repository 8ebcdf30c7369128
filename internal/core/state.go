package core

import "fmt"

var transitions = map[SyncStatus][]SyncStatus{
	SyncStatusPending:    {SyncStatusInProgress},
	SyncStatusFailed:     {SyncStatusInProgress},
	SyncStatusInProgress: {SyncStatusSynced, SyncStatusFailed, SyncStatusPending},
	SyncStatusSynced:     nil,
}

// CanTransition reports whether an event may move from one sync status to another.
// in_progress -> pending is only used when requeueing an abandoned claim.
func CanTransition(from, to SyncStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when the change is not allowed
func CheckTransition(from, to SyncStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsDeliverable reports whether the delivery engine may select the event
func IsDeliverable(event *StoredEvent, maxRetries int) bool {
	if event.RetryCount >= maxRetries {
		return false
	}
	return event.SyncStatus == SyncStatusPending || event.SyncStatus == SyncStatusFailed
}

// IsExhausted reports whether the event failed permanently
func IsExhausted(event *StoredEvent, maxRetries int) bool {
	return event.SyncStatus == SyncStatusFailed && event.RetryCount >= maxRetries
}
