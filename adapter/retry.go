package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MateoLopez004/Gobackup/types"
)

// MaxRetryAfter caps the wait a receiver may request between attempts.
const MaxRetryAfter = 30 * time.Second

// Backoff returns the wait before retry n (1-based): 500ms, 1s, 2s, ...
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * 500 * time.Millisecond
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryAfter is implemented by errors that carry the receiver's requested
// wait before the next attempt.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// RetryBudget returns how many retries an event of the given outcome gets.
// Done events use the configured budget. Failed and timed out events get
// one more attempt, since those are the notifications operators act on.
func RetryBudget(outcome string, retries int) int {
	if retries <= 0 {
		return retries
	}
	switch types.SessionStatus(outcome) {
	case types.StatusFailed, types.StatusTimedOut:
		return retries + 1
	default:
		return retries
	}
}

// Retry calls fn until it succeeds, returns a Permanent error, or
// 1+retries attempts are spent. The attempt number passed to fn starts at 1.
// It returns the number of attempts made and the last error.
func Retry(ctx context.Context, retries int, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	attempts := 1 + max(retries, 0)

	for i := range attempts {
		if i > 0 {
			wait := Backoff(i)
			var hint RetryAfter
			if errors.As(lastErr, &hint) {
				wait = max(wait, min(hint.RetryAfter(), MaxRetryAfter))
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return i, fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context canceled: %w", err)
		}

		lastErr = fn(ctx, i+1)
		if lastErr == nil {
			return i + 1, nil
		}
		if IsPermanent(lastErr) {
			return i + 1, lastErr
		}
	}
	return attempts, lastErr
}
