package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEventNotFound is returned when a stored event does not exist
	ErrEventNotFound = errors.New("event not found")
	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownProvider is returned when no extractor is registered for a provider
	ErrUnknownProvider = errors.New("unknown AI provider")
	// ErrInvalidTransition is returned when a sync status change is not allowed
	ErrInvalidTransition = errors.New("invalid sync status transition")
)

// ErrorKind classifies pipeline failures so callers can branch on them
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindFetch
	KindExtraction
	KindPersistence
	KindDelivery
)

func (k ErrorKind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindExtraction:
		return "extraction"
	case KindPersistence:
		return "persistence"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// PipelineError carries the kind and context of a pipeline failure
type PipelineError struct {
	Kind   ErrorKind
	Op     string
	UserID string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s error in %s for user %s: %v", e.Kind, e.Op, e.UserID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(kind ErrorKind, op, userID string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, UserID: userID, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a PipelineError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
