// Package webhook POSTs backup finished events to an HTTP endpoint.
//
// Every attempt for one event carries the same Idempotency-Key, and the
// outcome and session travel as headers so receivers can route without
// parsing the body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MateoLopez004/Gobackup/adapter"
	"github.com/MateoLopez004/Gobackup/iox"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is the retry budget for done events.
	DefaultRetries = 3
)

// Request headers set on every attempt.
const (
	IdempotencyHeader = "Idempotency-Key"
	OutcomeHeader     = "X-Gobackup-Outcome"
	SessionHeader     = "X-Gobackup-Session"
	AttemptHeader     = "X-Gobackup-Attempt"
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the retry budget. Failed and timed out events get one more.
	Retries int
}

// Adapter publishes backup finished events via HTTP POST.
type Adapter struct {
	config Config
	client *http.Client
}

// New creates a webhook adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Publish POSTs the event as JSON. 5xx, 429 and network errors are retried;
// other 4xx responses fail at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BackupFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	attempts, err := adapter.Retry(ctx, adapter.RetryBudget(event.Outcome, a.config.Retries), func(ctx context.Context, attempt int) error {
		return a.post(ctx, event, attempt, body)
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("webhook: %w", err)
	case adapter.IsPermanent(err):
		return fmt.Errorf("webhook: event %s rejected: %w", event.EventID, err)
	default:
		return fmt.Errorf("webhook: event %s not delivered after %d attempts: %w", event.EventID, attempts, err)
	}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// Wait is the delay requested by a Retry-After header, if any.
	Wait time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// RetryAfter implements adapter.RetryAfter.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// Retriable reports whether the receiver may accept the event later.
func (e *StatusError) Retriable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

func (a *Adapter) post(ctx context.Context, event *adapter.BackupFinishedEvent, attempt int, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}

	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, event.EventID)
	req.Header.Set(OutcomeHeader, event.Outcome)
	req.Header.Set(SessionHeader, event.SessionID)
	req.Header.Set(AttemptHeader, strconv.Itoa(attempt))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode, Wait: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	if !statusErr.Retriable() {
		return adapter.Permanent(statusErr)
	}
	return statusErr
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Anything else is 0.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
