// Package redis publishes backup finished events over Redis pub/sub.
//
// Each event goes to the base channel and to a channel scoped to its
// outcome (for example gobackup:backup_finished:failed), so a subscriber
// that only cares about failures can listen on one channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MateoLopez004/Gobackup/adapter"
)

const (
	// DefaultChannel is the base pub/sub channel.
	DefaultChannel = "gobackup:backup_finished"
	// DefaultTimeout bounds one pipelined publish.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the retry budget for done events.
	DefaultRetries = 3
)

// ErrNoSubscribers is returned when RequireSubscriber is set and no client
// received the event on either channel.
var ErrNoSubscribers = errors.New("no subscribers received the event")

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the base channel name (default: gobackup:backup_finished).
	Channel string
	// Timeout bounds each publish attempt (default 5s).
	Timeout time.Duration
	// Retries is the retry budget. Failed and timed out events get one more.
	Retries int
	// RequireSubscriber treats a publish nobody received as a failure and
	// retries it, for setups where the listener may be reconnecting.
	RequireSubscriber bool
}

// Adapter publishes backup finished events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// OutcomeChannel returns the channel scoped to outcome, or "" when the
// outcome is empty.
func OutcomeChannel(base, outcome string) string {
	if outcome == "" {
		return ""
	}
	return base + ":" + outcome
}

// Publish sends the event to the base and outcome channels in one pipeline.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BackupFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	scoped := OutcomeChannel(a.config.Channel, event.Outcome)

	attempts, err := adapter.Retry(ctx, adapter.RetryBudget(event.Outcome, a.config.Retries), func(ctx context.Context, _ int) error {
		receivers, err := a.publishOnce(ctx, scoped, body)
		if err != nil {
			return err
		}
		if a.config.RequireSubscriber && receivers == 0 {
			return ErrNoSubscribers
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("redis: %w", err)
	default:
		return fmt.Errorf("redis: event %s not delivered after %d attempts: %w", event.EventID, attempts, err)
	}
}

// publishOnce returns the number of subscribers reached across both channels.
func (a *Adapter) publishOnce(ctx context.Context, scoped string, body []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var base, byOutcome *goredis.IntCmd
	_, err := a.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		base = pipe.Publish(ctx, a.config.Channel, body)
		if scoped != "" {
			byOutcome = pipe.Publish(ctx, scoped, body)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := base.Val()
	if byOutcome != nil {
		n += byOutcome.Val()
	}
	return n, nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
