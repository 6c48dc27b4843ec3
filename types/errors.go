package types

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for orchestration failures.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrUpload marks a single file that could not be uploaded. Never fatal
	// to the batch.
	ErrUpload = errors.New("upload failed")

	// ErrTrigger marks a backup job that could not be started.
	ErrTrigger = errors.New("trigger failed")

	// ErrTransport marks a transient failure while polling status.
	ErrTransport = errors.New("transport error")

	// ErrTimeout marks a polling cycle that reached its attempt ceiling.
	ErrTimeout = errors.New("polling timed out")

	// ErrMetadata marks a failed artifact metadata fetch. Automatic retrieval
	// stops until the session is reset.
	ErrMetadata = errors.New("artifact metadata unavailable")

	// ErrDelivery marks a failed background artifact transfer.
	ErrDelivery = errors.New("artifact delivery failed")
)

// Error wraps an underlying error with an orchestration kind.
// It preserves the original error in the chain for errors.As.
type Error struct {
	// Kind is the sentinel for classification (e.g. ErrTrigger).
	Kind error
	// Op is the operation that failed (e.g. "upload", "poll").
	Op string
	// SessionID is the session involved, if bound.
	SessionID string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s [%s]: %v: %v", e.Op, e.SessionID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target kind.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified orchestration error.
// Returns nil if err is nil.
func NewError(kind error, op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}
