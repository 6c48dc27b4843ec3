package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MateoLopez004/Gobackup/adapter"
	"github.com/MateoLopez004/Gobackup/iox"
)

func testEvent() *adapter.BackupFinishedEvent {
	return &adapter.BackupFinishedEvent{
		SchemaVersion:    "0.3.0",
		EventID:          "7d0e3c52-3f0b-4d8e-9a53-5f0c3b1f6a10",
		EventType:        adapter.EventTypeBackupFinished,
		SessionID:        "sess-abc",
		Outcome:          "done",
		CompletionPath:   "primary",
		FilesUploaded:    3,
		TotalFiles:       3,
		FilesCopied:      3,
		ArtifactSize:     3147876,
		ArtifactLocation: "file:///var/backups/sess-abc.zip",
		Timestamp:        "2026-03-01T12:00:00Z",
		DurationMs:       4200,
	}
}

func TestPublish_Success(t *testing.T) {
	var received adapter.BackupFinishedEvent
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if received.SessionID != "sess-abc" {
		t.Errorf("expected sess-abc, got %s", received.SessionID)
	}
	if received.EventType != adapter.EventTypeBackupFinished {
		t.Errorf("expected %s, got %s", adapter.EventTypeBackupFinished, received.EventType)
	}
	if received.CompletionPath != "primary" {
		t.Errorf("expected primary, got %s", received.CompletionPath)
	}
}

func TestPublish_HeadersAndIdempotencyKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	var auth string
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get(IdempotencyHeader))
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	a, err := New(Config{
		URL:     ts.URL,
		Headers: map[string]string{"Authorization": "Bearer test-token"},
		Retries: 1,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	ev := testEvent()
	if err := a.Publish(t.Context(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer test-token" {
		t.Errorf("expected Bearer test-token, got %s", auth)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(keys))
	}
	for i, k := range keys {
		if k != ev.EventID {
			t.Errorf("attempt %d: idempotency key = %q, want %q", i+1, k, ev.EventID)
		}
	}
}

func TestPublish_StatusClassification(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		retries      int
		wantErr      bool
		wantAttempts int32
	}{
		{"200 accepted", http.StatusOK, 3, false, 1},
		{"204 accepted", http.StatusNoContent, 3, false, 1},
		{"400 not retried", http.StatusBadRequest, 3, true, 1},
		{"404 not retried", http.StatusNotFound, 3, true, 1},
		{"429 retried", http.StatusTooManyRequests, 1, true, 2},
		{"500 retried", http.StatusInternalServerError, 2, true, 3},
		{"503 retried", http.StatusServiceUnavailable, 1, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.code)
			}))
			defer ts.Close()

			a, err := New(Config{URL: ts.URL, Retries: tt.retries, Timeout: 5 * time.Second})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer iox.DiscardClose(a)

			err = a.Publish(t.Context(), testEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if tt.wantErr {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) || statusErr.Code != tt.code {
					t.Errorf("expected StatusError{%d}, got %v", tt.code, err)
				}
			}
		})
	}
}

func TestPublish_OutcomeHeadersAndBudget(t *testing.T) {
	var mu sync.Mutex
	var outcomes, sessions, attemptNums []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		outcomes = append(outcomes, r.Header.Get(OutcomeHeader))
		sessions = append(sessions, r.Header.Get(SessionHeader))
		attemptNums = append(attemptNums, r.Header.Get(AttemptHeader))
		mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Retries: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	ev := testEvent()
	ev.Outcome = "failed"
	if err := a.Publish(t.Context(), ev); err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	mu.Lock()
	defer mu.Unlock()
	// A failed event gets one retry beyond the configured budget.
	if len(attemptNums) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attemptNums))
	}
	for i := range attemptNums {
		if outcomes[i] != "failed" || sessions[i] != "sess-abc" {
			t.Errorf("attempt %d: outcome=%q session=%q", i+1, outcomes[i], sessions[i])
		}
		if want := strconv.Itoa(i + 1); attemptNums[i] != want {
			t.Errorf("attempt header = %q, want %q", attemptNums[i], want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	a, err := New(Config{URL: ts.URL, Retries: 0, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://example.com", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}

	a, err := New(Config{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, a.config.Timeout)
	}
}
