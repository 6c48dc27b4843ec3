// Package runtime drives a backup session end to end.
//
// The Orchestrator owns one session. Uploads bind files to it, Trigger starts
// a trigger cycle (job request, bounded polling, completion resolution and
// artifact retrieval) and Reset discards everything, including work still in
// flight. Every component reports back through the session generation, so
// results that arrive after a Reset are dropped.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MateoLopez004/Gobackup/adapter"
	"github.com/MateoLopez004/Gobackup/artifact"
	"github.com/MateoLopez004/Gobackup/log"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/poller"
	"github.com/MateoLopez004/Gobackup/remote"
	"github.com/MateoLopez004/Gobackup/resolver"
	"github.com/MateoLopez004/Gobackup/session"
	"github.com/MateoLopez004/Gobackup/trace"
	"github.com/MateoLopez004/Gobackup/types"
	"github.com/MateoLopez004/Gobackup/upload"
)

// DefaultPublishTimeout bounds one adapter publish.
const DefaultPublishTimeout = 10 * time.Second

var (
	// ErrNothingToTrigger is returned by Trigger when no file has been
	// acknowledged for a bound session. No request is made.
	ErrNothingToTrigger = errors.New("no uploaded files to back up")
	// ErrNoCycle is returned by Wait when no trigger cycle exists.
	ErrNoCycle = errors.New("runtime: no trigger cycle")
	// ErrCycleRunning is returned by Trigger and Upload while the previous
	// trigger cycle has not finished. The session can already be Done while
	// its archive is still being delivered.
	ErrCycleRunning = errors.New("runtime: trigger cycle still running")
)

// Service is the part of the gobackup API the orchestrator drives.
// *remote.Client implements it.
type Service interface {
	upload.Uploader
	poller.Fetcher
	artifact.MetadataFetcher
	Trigger(ctx context.Context, sessionID string) (*remote.TriggerAck, error)
	Cleanup(ctx context.Context, sessionID string) error
}

// Config configures an Orchestrator.
type Config struct {
	// Poller configures the polling loop (defaults: 2s, 300 attempts).
	Poller poller.Config
	// SettleDelay is waited between completion and the metadata fetch.
	// Zero means no wait; production callers use artifact.DefaultSettleDelay.
	SettleDelay time.Duration
	// Deliverer receives the archive. Nil uses a link deliverer, which
	// requires the Service to implement artifact.Linker.
	Deliverer artifact.Deliverer
	// Adapter, when set, receives one event per finished trigger cycle.
	// The orchestrator closes it.
	Adapter adapter.Adapter
	// PublishTimeout bounds each publish (default 10s).
	PublishTimeout time.Duration
	// Recorder, when set, receives every poll tick. The orchestrator closes it.
	Recorder *trace.Recorder
	// Cleanup asks the service to delete the session after a successful
	// store delivery.
	Cleanup bool
	// Server is the service URL, recorded in trace headers.
	Server string

	Logger    *log.Logger
	Collector *metrics.Collector
	Observer  Observer
}

// CycleResult describes a finished trigger cycle.
type CycleResult struct {
	SessionID string
	// Status is the session status the cycle ended in.
	Status types.SessionStatus
	// Err is the cycle's failure, if any. A delivery failure leaves Status
	// Done and sets Err.
	Err      error
	Path     types.CompletionPath
	Percent  int
	Attempts int
	// Last is the last snapshot received.
	Last     *types.StatusSnapshot
	Warnings []string
	Artifact *types.ArtifactInfo
	Delivery *artifact.Delivery
	// Abandoned is set when the cycle was reset or canceled before it
	// reached a terminal state.
	Abandoned bool
	StartedAt time.Time
	Duration  time.Duration
}

type cycle struct {
	gen       uint64
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	started   time.Time
	done      chan struct{}
	once      sync.Once

	// Poll handler state; tick delivery is serialised by the poller.
	mem       types.PollMemory
	completed bool
	seen      map[string]struct{}

	mu     sync.Mutex
	result CycleResult
}

func (c *cycle) update(fn func(r *CycleResult)) {
	c.mu.Lock()
	fn(&c.result)
	c.mu.Unlock()
}

func (c *cycle) running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *cycle) snapshot() CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.result
	r.Warnings = slices.Clone(r.Warnings)
	return r
}

// Orchestrator coordinates one backup session.
type Orchestrator struct {
	cfg       Config
	svc       Service
	session   *session.Context
	uploads   *upload.Coordinator
	poller    *poller.Poller
	retriever *artifact.Retriever
	deliverer artifact.Deliverer
	logger    *log.Logger
	metrics   *metrics.Collector

	mu    sync.Mutex
	cycle *cycle
}

// New creates an Orchestrator over svc.
func New(svc Service, cfg Config) (*Orchestrator, error) {
	if svc == nil {
		return nil, errors.New("runtime: service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	deliverer := cfg.Deliverer
	if deliverer == nil {
		links, ok := svc.(artifact.Linker)
		if !ok {
			return nil, errors.New("runtime: a deliverer is required when the service cannot build download links")
		}
		deliverer = artifact.NewLinkDeliverer(links)
	}

	o := &Orchestrator{
		cfg:       cfg,
		svc:       svc,
		session:   session.New(),
		deliverer: deliverer,
		logger:    cfg.Logger.WithComponent("runtime"),
		metrics:   cfg.Collector,
	}
	o.uploads = upload.NewCoordinator(svc, o.session, cfg.Logger, cfg.Collector)
	o.uploads.OnBind = func(res types.BindResult) {
		o.emit(Event{Kind: EventSessionBound, SessionID: res.SessionID})
	}
	o.uploads.OnFile = func(fd types.FileDescriptor) {
		o.emit(Event{Kind: EventFileUploaded, SessionID: o.session.ID(), File: &fd})
	}
	o.poller = poller.New(cfg.Poller, svc, cfg.Logger, cfg.Collector)
	o.retriever = artifact.NewRetriever(
		artifact.Config{SettleDelay: cfg.SettleDelay},
		svc, o.session, deliverer, cfg.Logger, cfg.Collector,
	)
	return o, nil
}

// View returns a copy of the session state.
func (o *Orchestrator) View() types.SessionView {
	return o.session.View()
}

// Backend returns the artifact delivery backend name.
func (o *Orchestrator) Backend() string {
	return o.deliverer.Backend()
}

// Upload submits files to the session. See upload.Coordinator.Submit.
// Uploads are refused until the current trigger cycle has finished,
// including its archive delivery.
func (o *Orchestrator) Upload(ctx context.Context, files []types.Blob) (upload.Summary, error) {
	if o.cycleRunning() {
		return upload.Summary{}, fmt.Errorf("%w: %w", upload.ErrJobInFlight, ErrCycleRunning)
	}
	return o.uploads.Submit(ctx, files)
}

func (o *Orchestrator) cycleRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycle != nil && o.cycle.running()
}

// Trigger starts a trigger cycle: it requests the backup job and, once the
// service accepts it, starts polling. It returns when polling has started or
// the trigger failed; use Wait for the cycle's result.
//
// Trigger requires a bound session with at least one acknowledged file and
// no job in flight. A previous cycle whose delivery is still running counts
// as in flight. Otherwise it fails with types.ErrTrigger without a network
// call.
func (o *Orchestrator) Trigger(ctx context.Context) error {
	v := o.session.View()
	if v.ID == "" || v.SucceededCount() == 0 {
		return types.NewError(types.ErrTrigger, "trigger", v.ID, ErrNothingToTrigger)
	}

	o.mu.Lock()
	if o.cycle != nil && o.cycle.running() {
		o.mu.Unlock()
		return types.NewError(types.ErrTrigger, "trigger", v.ID, ErrCycleRunning)
	}
	if err := o.session.Transition(v.Generation, types.StatusTriggering,
		types.StatusUploadsReady, types.StatusDone, types.StatusTimedOut, types.StatusFailed,
	); err != nil {
		o.mu.Unlock()
		return types.NewError(types.ErrTrigger, "trigger", v.ID, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &cycle{
		gen:       v.Generation,
		sessionID: v.ID,
		ctx:       cctx,
		cancel:    cancel,
		started:   time.Now(),
		done:      make(chan struct{}),
		seen:      make(map[string]struct{}),
	}
	c.result = CycleResult{SessionID: v.ID, StartedAt: c.started}

	o.cycle = c
	o.mu.Unlock()

	logger := o.logger.WithSession(v.ID)
	logger.Info("triggering backup", map[string]any{"files": v.SucceededCount()})

	ack, err := o.svc.Trigger(cctx, v.ID)
	if err != nil {
		o.metrics.IncTriggerFailed()
		terr := types.NewError(types.ErrTrigger, "trigger", v.ID, err)
		logger.Error("backup trigger failed", map[string]any{"error": err.Error()})
		if serr := o.session.Transition(c.gen, types.StatusFailed, types.StatusTriggering); serr != nil {
			o.abandon(c, serr)
			return serr
		}
		o.finish(c, types.StatusFailed, terr)
		return terr
	}

	o.metrics.IncTriggerAccepted()
	if err := o.session.Transition(c.gen, types.StatusPolling, types.StatusTriggering); err != nil {
		o.abandon(c, err)
		return err
	}
	logger.Info("backup job accepted", map[string]any{"files": ack.Files, "message": ack.Message})
	o.emit(Event{Kind: EventTriggered, SessionID: v.ID})

	if o.cfg.Recorder != nil {
		pc := o.poller.Config()
		if err := o.cfg.Recorder.WriteHeader(trace.Header{
			SessionID:   v.ID,
			Server:      o.cfg.Server,
			IntervalMs:  pc.Interval.Milliseconds(),
			MaxAttempts: pc.MaxAttempts,
			StartedAt:   c.started.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			logger.Warn("trace header write failed", map[string]any{"error": err.Error()})
		}
	}

	o.poller.Start(cctx, o.handler(c, logger))
	return nil
}

func (o *Orchestrator) handler(c *cycle, logger *log.Logger) poller.Handler {
	return func(t poller.Tick) bool {
		if o.session.Generation() != c.gen {
			return true
		}

		switch t.Kind {
		case poller.TickTransportError:
			c.update(func(r *CycleResult) { r.Attempts = t.Attempt })
			o.record(logger, trace.Record{Attempt: t.Attempt, TransportError: t.Err.Error()})
			o.emit(Event{Kind: EventTransportError, SessionID: c.sessionID, Attempt: t.Attempt, Err: t.Err})
			return false

		case poller.TickTimedOut:
			o.record(logger, trace.Record{Attempt: t.Attempt, TimedOut: true})
			if err := o.session.Transition(c.gen, types.StatusTimedOut, types.StatusPolling); err != nil {
				o.abandon(c, err)
				return true
			}
			err := types.NewError(types.ErrTimeout, "poll", c.sessionID,
				fmt.Errorf("no completion after %d attempts", t.Attempt-1))
			go o.finish(c, types.StatusTimedOut, err)
			return true

		case poller.TickSnapshot:
			return o.onSnapshot(c, logger, t)
		}
		return false
	}
}

func (o *Orchestrator) onSnapshot(c *cycle, logger *log.Logger, t poller.Tick) bool {
	snap := *t.Snapshot
	res := resolver.Resolve(snap, &c.mem)
	o.metrics.RecordVerdict(string(res.Verdict))

	c.update(func(r *CycleResult) {
		r.Attempts = t.Attempt
		r.Last = &snap
		r.Percent = res.Percent
	})
	o.record(logger, trace.Record{
		Attempt:  t.Attempt,
		Snapshot: &snap,
		Verdict:  res.Verdict,
		Path:     res.Path,
		Percent:  res.Percent,
	})

	for _, w := range res.Warnings {
		if _, dup := c.seen[w]; dup {
			continue
		}
		c.seen[w] = struct{}{}
		c.update(func(r *CycleResult) { r.Warnings = append(r.Warnings, w) })
		logger.Warn("backup warning", map[string]any{"warning": w})
		o.emit(Event{Kind: EventWarning, SessionID: c.sessionID, Attempt: t.Attempt, Warning: w})
	}

	if res.Verdict != types.VerdictCompleted {
		logger.Debug("poll tick", map[string]any{
			"attempt":      t.Attempt,
			"verdict":      string(res.Verdict),
			"percent":      res.Percent,
			"files_copied": snap.FilesCopied,
			"total_files":  snap.TotalFiles,
			"phase":        c.mem.Phase.String(),
		})
		o.emit(Event{Kind: EventProgress, SessionID: c.sessionID, Attempt: t.Attempt, Resolution: &res, Snapshot: &snap})
		return false
	}

	if c.completed {
		return true
	}
	c.completed = true
	c.update(func(r *CycleResult) { r.Path = res.Path })

	if err := o.session.Transition(c.gen, types.StatusCompleted, types.StatusPolling); err != nil {
		o.abandon(c, err)
		return true
	}
	o.metrics.RecordCompletion(string(res.Path))

	fields := map[string]any{
		"attempt":      t.Attempt,
		"path":         string(res.Path),
		"files_copied": snap.FilesCopied,
		"total_files":  snap.TotalFiles,
	}
	if res.Path == types.PathFallback {
		logger.Warn("backup completion inferred from stopped job", fields)
	} else {
		logger.Info("backup job completed", fields)
	}
	o.emit(Event{Kind: EventCompleted, SessionID: c.sessionID, Attempt: t.Attempt, Resolution: &res, Snapshot: &snap})

	go o.retrieve(c, logger)
	return true
}

func (o *Orchestrator) retrieve(c *cycle, logger *log.Logger) {
	info, err := o.retriever.Retrieve(c.ctx, c.gen, c.sessionID)
	switch {
	case errors.Is(err, artifact.ErrAlreadyTriggered):
		logger.Info("artifact already retrieved for session", nil)
		o.finish(c, types.StatusDone, nil)
		return
	case errors.Is(err, types.ErrMetadata):
		o.finish(c, types.StatusFailed, err)
		return
	case err != nil:
		o.abandon(c, err)
		return
	}

	c.update(func(r *CycleResult) { r.Artifact = info })
	o.emit(Event{Kind: EventRetrieved, SessionID: c.sessionID, Artifact: info})

	if err := o.retriever.Wait(c.ctx); err != nil {
		o.abandon(c, err)
		return
	}

	var derr error
	if d := o.deliveryFor(c.sessionID); d != nil {
		derr = d.Err
		c.update(func(r *CycleResult) { r.Delivery = d })
		o.emit(Event{Kind: EventDelivered, SessionID: c.sessionID, Delivery: d, Err: d.Err})
		if d.Err == nil && o.cfg.Cleanup {
			o.cleanup(c, logger)
		}
	}
	o.finish(c, types.StatusDone, derr)
}

func (o *Orchestrator) deliveryFor(sessionID string) *artifact.Delivery {
	ds := o.retriever.Deliveries()
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].SessionID == sessionID {
			return &ds[i]
		}
	}
	return nil
}

func (o *Orchestrator) cleanup(c *cycle, logger *log.Logger) {
	if o.deliverer.Backend() == artifact.BackendLink {
		logger.Warn("cleanup skipped: link delivery needs the archive on the server", nil)
		return
	}
	if err := o.svc.Cleanup(c.ctx, c.sessionID); err != nil {
		logger.Error("session cleanup failed", map[string]any{"error": err.Error()})
		return
	}
	logger.Info("session cleaned up on server", nil)
}

// finish ends c in a terminal status and publishes its completion event.
func (o *Orchestrator) finish(c *cycle, status types.SessionStatus, err error) {
	c.once.Do(func() {
		c.update(func(r *CycleResult) {
			r.Status = status
			if err != nil {
				r.Err = err
			}
			r.Duration = time.Since(c.started)
		})

		res := c.snapshot()
		fields := map[string]any{
			"status":      string(status),
			"duration_ms": res.Duration.Milliseconds(),
			"attempts":    res.Attempts,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		o.logger.WithSession(c.sessionID).Info("trigger cycle finished", fields)

		o.publish(c, res)
		o.emit(Event{Kind: EventFinished, SessionID: c.sessionID, Status: status, Err: res.Err})
		c.cancel()
		close(c.done)
	})
}

// abandon ends c without a terminal status. Nothing is published.
func (o *Orchestrator) abandon(c *cycle, reason error) {
	c.once.Do(func() {
		c.update(func(r *CycleResult) {
			r.Abandoned = true
			r.Status = o.session.Status()
			r.Err = reason
			r.Duration = time.Since(c.started)
		})
		c.cancel()
		close(c.done)
	})
}

func (o *Orchestrator) publish(c *cycle, res CycleResult) {
	if o.cfg.Adapter == nil {
		return
	}
	event := BuildFinishedEvent(o.session.View(), res, time.Now())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), o.cfg.PublishTimeout)
	defer cancel()
	if err := o.cfg.Adapter.Publish(ctx, event); err != nil {
		o.metrics.IncPublishFailure()
		o.logger.WithSession(c.sessionID).Warn("completion event publish failed", map[string]any{
			"event_id": event.EventID,
			"error":    err.Error(),
		})
	}
}

func (o *Orchestrator) record(logger *log.Logger, rec trace.Record) {
	if o.cfg.Recorder == nil {
		return
	}
	if err := o.cfg.Recorder.Record(rec); err != nil {
		logger.Warn("trace write failed", map[string]any{"error": err.Error()})
	}
}

func (o *Orchestrator) emit(e Event) {
	if o.cfg.Observer != nil {
		o.cfg.Observer(e)
	}
}

// Wait blocks until the current trigger cycle ends or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (CycleResult, error) {
	o.mu.Lock()
	c := o.cycle
	o.mu.Unlock()
	if c == nil {
		return CycleResult{}, ErrNoCycle
	}
	select {
	case <-c.done:
		return c.snapshot(), nil
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

// Reset discards the session: polling stops, in-flight results are dropped
// and the session returns to Idle with no id, manifest or download guard.
// Callable in any state.
func (o *Orchestrator) Reset() {
	gen := o.session.Reset()
	o.poller.Stop()

	o.mu.Lock()
	c := o.cycle
	o.cycle = nil
	o.mu.Unlock()
	if c != nil {
		o.abandon(c, session.ErrStale)
	}

	o.metrics.IncReset()
	o.logger.Info("session reset", map[string]any{"generation": gen})
	o.emit(Event{Kind: EventReset})
}

// Close stops polling, waits for deliveries until ctx is done and releases
// the adapter and trace recorder.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.poller.Stop()
	err := o.retriever.Wait(ctx)
	if o.cfg.Adapter != nil {
		err = errors.Join(err, o.cfg.Adapter.Close())
	}
	if o.cfg.Recorder != nil {
		err = errors.Join(err, o.cfg.Recorder.Close())
	}
	return err
}
