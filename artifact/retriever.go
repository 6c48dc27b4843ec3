// Package artifact retrieves the archive of a completed backup job.
//
// A Retriever runs once per Completed verdict. It waits a short settling
// delay, fetches the archive metadata, sets the session's download guard and
// hands the transfer to a Deliverer in the background. The guard makes the
// download happen at most once per session, however many trigger cycles
// complete.
package artifact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MateoLopez004/Gobackup/log"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/session"
	"github.com/MateoLopez004/Gobackup/types"
)

// DefaultSettleDelay is the wait between completion and the metadata fetch.
const DefaultSettleDelay = time.Second

// ErrAlreadyTriggered is returned when the session's download was already
// started. The session still moves to Done.
var ErrAlreadyTriggered = errors.New("artifact: download already triggered")

// MetadataFetcher reads archive metadata from the service.
type MetadataFetcher interface {
	ArtifactInfo(ctx context.Context, sessionID string) (*types.ArtifactInfo, error)
}

// Config configures a Retriever.
type Config struct {
	// SettleDelay is waited before the metadata fetch. Zero means no wait.
	SettleDelay time.Duration
}

// Retriever fetches metadata and starts one delivery per session.
type Retriever struct {
	cfg       Config
	client    MetadataFetcher
	session   *session.Context
	deliverer Deliverer
	logger    *log.Logger
	metrics   *metrics.Collector

	wg sync.WaitGroup

	mu         sync.Mutex
	deliveries []Delivery

	// OnDelivery, when set, is called from the delivery goroutine once the
	// transfer has finished.
	OnDelivery func(d Delivery)
}

// NewRetriever creates a Retriever. logger and collector may be nil.
func NewRetriever(cfg Config, client MetadataFetcher, sess *session.Context, deliverer Deliverer, logger *log.Logger, collector *metrics.Collector) *Retriever {
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Retriever{
		cfg:       cfg,
		client:    client,
		session:   sess,
		deliverer: deliverer,
		logger:    logger.WithComponent("artifact"),
		metrics:   collector,
	}
}

// Retrieve runs retrieval for sessionID on behalf of generation gen. The
// session must be Completed. On success the session is Done and the archive
// transfer has been started; the returned metadata describes it.
//
// Errors:
//   - ErrAlreadyTriggered: the guard was set by an earlier cycle (session Done)
//   - types.ErrMetadata: the metadata fetch failed (session Failed, no retry)
//   - session.ErrStale: the session was reset meanwhile (nothing changed)
//   - ctx.Err(): canceled during the settling delay
func (r *Retriever) Retrieve(ctx context.Context, gen uint64, sessionID string) (*types.ArtifactInfo, error) {
	logger := r.logger.WithSession(sessionID)

	if r.session.DownloadTriggered() {
		logger.Debug("download already triggered", nil)
		if err := r.session.Transition(gen, types.StatusDone, types.StatusCompleted); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyTriggered
	}

	if err := sleep(ctx, r.cfg.SettleDelay); err != nil {
		return nil, err
	}

	if err := r.session.Transition(gen, types.StatusDownloading, types.StatusCompleted); err != nil {
		return nil, err
	}

	info, err := r.client.ArtifactInfo(ctx, sessionID)
	if err != nil {
		r.metrics.IncMetadataFailure()
		logger.Error("artifact metadata fetch failed", map[string]any{"error": err.Error()})
		merr := types.NewError(types.ErrMetadata, "backup-info", sessionID, err)
		if terr := r.session.Transition(gen, types.StatusFailed, types.StatusDownloading); terr != nil {
			return nil, terr
		}
		return nil, merr
	}

	if !r.session.MarkDownloadTriggered(gen) {
		if r.session.Generation() != gen {
			return nil, session.ErrStale
		}
		_ = r.session.Transition(gen, types.StatusDone, types.StatusDownloading)
		return nil, ErrAlreadyTriggered
	}
	if err := r.session.Transition(gen, types.StatusDone, types.StatusDownloading); err != nil {
		return nil, err
	}

	logger.Info("artifact download triggered", map[string]any{
		"filename": info.Filename,
		"size":     info.Size,
		"size_mb":  info.SizeMB,
		"backend":  r.deliverer.Backend(),
	})

	r.metrics.IncDeliveryStarted()
	r.wg.Add(1)
	go r.deliver(ctx, *info, logger)

	return info, nil
}

func (r *Retriever) deliver(ctx context.Context, info types.ArtifactInfo, logger *log.Logger) {
	defer r.wg.Done()

	start := time.Now()
	d, err := r.deliverer.Deliver(ctx, info)
	d.SessionID = info.SessionID
	d.Backend = r.deliverer.Backend()
	d.Duration = time.Since(start)
	if err != nil {
		d.Err = types.NewError(types.ErrDelivery, "deliver", info.SessionID, err)
		logger.Error("artifact delivery failed", map[string]any{
			"backend": d.Backend,
			"error":   err.Error(),
		})
	} else {
		logger.Info("artifact delivered", map[string]any{
			"backend":     d.Backend,
			"location":    d.Location,
			"bytes":       d.Bytes,
			"duration_ms": d.Duration.Milliseconds(),
		})
	}
	r.metrics.RecordDelivery(d.Err == nil, d.Bytes)

	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()

	if r.OnDelivery != nil {
		r.OnDelivery(d)
	}
}

// Wait blocks until all started deliveries have finished or ctx is done.
func (r *Retriever) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliveries returns the finished deliveries in completion order.
func (r *Retriever) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
