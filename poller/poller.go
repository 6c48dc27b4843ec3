// Package poller runs the bounded status polling loop for a backup job.
//
// A Poller owns at most one cycle at a time. Each tick performs one status
// fetch and hands the result to the cycle's Handler. Transport failures are
// logged and polling continues; once the attempt count exceeds MaxAttempts
// the handler receives a timeout tick and the cycle ends.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/MateoLopez004/Gobackup/log"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/types"
)

const (
	// DefaultInterval is the time between status fetches.
	DefaultInterval = 2 * time.Second
	// DefaultMaxAttempts bounds a cycle to 10 minutes at the default interval.
	DefaultMaxAttempts = 300
)

// Fetcher reads the current job status.
type Fetcher interface {
	Status(ctx context.Context) (*types.StatusSnapshot, error)
}

// TickKind distinguishes the results a Handler can receive.
type TickKind int

const (
	// TickSnapshot carries a fetched snapshot.
	TickSnapshot TickKind = iota
	// TickTransportError carries a failed fetch. Polling continues.
	TickTransportError
	// TickTimedOut is delivered once when MaxAttempts is exceeded.
	TickTimedOut
)

// Tick is the result of one polling attempt.
type Tick struct {
	Kind     TickKind
	Attempt  int
	Snapshot *types.StatusSnapshot
	Err      error
}

// Handler receives tick results in order. It runs while the poller's lock is
// held, so Stop cannot return while a handler is executing. It must not call
// Start or Stop; returning true ends the cycle instead.
type Handler func(t Tick) (stop bool)

// TickerFunc creates the tick source for a cycle and returns a release func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Config configures a Poller.
type Config struct {
	// Interval is the fixed time between ticks (default 2s).
	Interval time.Duration
	// MaxAttempts is the number of fetches before timing out (default 300).
	MaxAttempts int
	// Ticker overrides the tick source (tests).
	Ticker TickerFunc
}

// Poller drives one polling cycle at a time.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	logger  *log.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	cycle *cycle
}

type cycle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Poller. logger and collector may be nil.
func New(cfg Config, fetcher Fetcher, logger *log.Logger, collector *metrics.Collector) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Ticker == nil {
		cfg.Ticker = realTicker
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.WithComponent("poller"),
		metrics: collector,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Config returns the effective configuration.
func (p *Poller) Config() Config {
	return p.cfg
}

// Start stops any running cycle, then begins a new one. The returned channel
// is closed when the cycle's goroutine has exited.
func (p *Poller) Start(ctx context.Context, h Handler) <-chan struct{} {
	cctx, cancel := context.WithCancel(ctx)
	c := &cycle{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.cycle
	p.cycle = c
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	ticks, release := p.cfg.Ticker(p.cfg.Interval)

	p.logger.Debug("polling started", map[string]any{
		"interval_ms":  p.cfg.Interval.Milliseconds(),
		"max_attempts": p.cfg.MaxAttempts,
	})

	go p.run(cctx, c, ticks, release, h)
	return c.done
}

// Stop ends the running cycle, if any, and waits for its goroutine to exit.
// Idempotent. After Stop returns no handler call is in progress or pending,
// and the result of a fetch that was in flight is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	c := p.cycle
	p.cycle = nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Running reports whether a cycle is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycle != nil
}

func (p *Poller) run(ctx context.Context, c *cycle, ticks <-chan time.Time, release func(), h Handler) {
	defer close(c.done)
	defer release()
	defer p.detach(c)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		attempt++
		if attempt > p.cfg.MaxAttempts {
			p.metrics.IncTimeout()
			p.logger.Warn("polling timed out", map[string]any{"attempts": p.cfg.MaxAttempts})
			p.deliver(c, h, Tick{Kind: TickTimedOut, Attempt: attempt, Err: types.ErrTimeout})
			return
		}

		p.metrics.IncPollTick()
		snap, err := p.fetcher.Status(ctx)
		if ctx.Err() != nil {
			return
		}

		tick := Tick{Kind: TickSnapshot, Attempt: attempt, Snapshot: snap}
		if err != nil {
			p.metrics.IncTransportError()
			p.logger.Warn("status fetch failed", map[string]any{"attempt": attempt, "error": err.Error()})
			tick = Tick{Kind: TickTransportError, Attempt: attempt, Err: types.NewError(types.ErrTransport, "poll", "", err)}
		}
		if p.deliver(c, h, tick) {
			return
		}
	}
}

// deliver invokes h if c is still the current cycle. It reports whether the
// cycle should end.
func (p *Poller) deliver(c *cycle, h Handler, t Tick) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cycle != c {
		return true
	}
	return h(t)
}

func (p *Poller) detach(c *cycle) {
	p.mu.Lock()
	if p.cycle == c {
		p.cycle = nil
	}
	p.mu.Unlock()
	c.cancel()
}
