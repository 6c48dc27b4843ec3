package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned for non-2xx responses.
// Message carries the service's {"error": ...} text when present.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
}

// NotFound reports whether the service answered 404.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// TransportError wraps failures that never produced an HTTP response
// (dial, TLS, timeouts, reset connections) or produced an unreadable one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.NotFound()
}
