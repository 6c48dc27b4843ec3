// Package upload submits files to the backup service one at a time and binds
// them to a single session.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateoLopez004/Gobackup/log"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/remote"
	"github.com/MateoLopez004/Gobackup/session"
	"github.com/MateoLopez004/Gobackup/types"
)

var (
	// ErrNoFiles is returned by Submit for an empty batch. No request is made.
	ErrNoFiles = errors.New("upload: no files to submit")
	// ErrJobInFlight is returned when a backup job is active for the session.
	ErrJobInFlight = errors.New("upload: backup job in flight")
)

// Uploader sends one file to the service.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, blob types.Blob) (*remote.UploadAck, error)
}

// Summary is the result of a batch.
type Summary struct {
	Succeeded int
	Failed    int
	// SessionID is the id bound after the batch ("" if none).
	SessionID string
	// Files are this batch's manifest entries in submission order.
	Files []types.FileDescriptor
}

// Coordinator serialises uploads for one session.
type Coordinator struct {
	client  Uploader
	session *session.Context
	logger  *log.Logger
	metrics *metrics.Collector

	// OnFile, when set, is called after each file with its manifest entry.
	OnFile func(fd types.FileDescriptor)
	// OnBind, when set, is called when the service assigns a session id.
	OnBind func(res types.BindResult)
}

// NewCoordinator creates a Coordinator. logger and collector may be nil.
func NewCoordinator(client Uploader, sess *session.Context, logger *log.Logger, collector *metrics.Collector) *Coordinator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Coordinator{
		client:  client,
		session: sess,
		logger:  logger.WithComponent("upload"),
		metrics: collector,
	}
}

// Submit uploads files strictly in order. A failed file is recorded and the
// batch continues. The returned error is non-nil only when the batch could
// not run (empty input, job in flight, canceled context, or a reset during
// the batch); per-file failures are reported in the Summary.
func (c *Coordinator) Submit(ctx context.Context, files []types.Blob) (Summary, error) {
	if len(files) == 0 {
		return Summary{}, ErrNoFiles
	}

	gen := c.session.Generation()
	if err := c.session.Transition(gen, types.StatusUploading,
		types.StatusIdle, types.StatusUploadsReady,
		types.StatusDone, types.StatusTimedOut, types.StatusFailed,
	); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			return Summary{}, fmt.Errorf("%w: %v", ErrJobInFlight, err)
		}
		return Summary{}, err
	}

	c.logger.Info("upload batch started", map[string]any{"files": len(files)})

	var sum Summary
	for i, blob := range files {
		if err := ctx.Err(); err != nil {
			_ = c.finish(gen)
			return c.summarize(sum), err
		}

		fd := c.uploadOne(ctx, gen, blob)
		if err := c.session.AppendFile(gen, fd); err != nil {
			// Session was reset while the request was in flight.
			return c.summarize(sum), err
		}
		sum.Files = append(sum.Files, fd)
		if fd.Succeeded() {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		c.metrics.RecordUpload(fd.Succeeded(), fd.Size)
		if c.OnFile != nil {
			c.OnFile(fd)
		}

		c.logger.Debug("upload progress", map[string]any{"done": i + 1, "total": len(files)})
	}

	if err := c.finish(gen); err != nil {
		return c.summarize(sum), err
	}

	c.logger.Info("upload batch finished", map[string]any{
		"succeeded":  sum.Succeeded,
		"failed":     sum.Failed,
		"session_id": c.session.ID(),
	})
	return c.summarize(sum), nil
}

func (c *Coordinator) summarize(sum Summary) Summary {
	sum.SessionID = c.session.ID()
	return sum
}

// finish moves the session out of Uploading: UploadsReady when a bound
// session holds at least one acknowledged file, Idle otherwise.
func (c *Coordinator) finish(gen uint64) error {
	next := types.StatusIdle
	if v := c.session.View(); v.ID != "" && v.SucceededCount() > 0 {
		next = types.StatusUploadsReady
	}
	return c.session.Transition(gen, next, types.StatusUploading)
}

func (c *Coordinator) uploadOne(ctx context.Context, gen uint64, blob types.Blob) types.FileDescriptor {
	fd := types.FileDescriptor{Name: blob.Name, Size: blob.Size}
	sid := c.session.ID()

	ack, err := c.client.Upload(ctx, sid, blob)
	if err != nil {
		return c.failed(fd, types.NewError(types.ErrUpload, "upload", sid, err))
	}

	ackID := ack.SessionID
	if ackID == "" {
		if sid == "" {
			return c.failed(fd, types.NewError(types.ErrUpload, "upload", "",
				errors.New("acknowledgement carried no session id")))
		}
		ackID = sid
	}

	res, err := c.session.Bind(gen, ackID)
	if err != nil {
		if errors.Is(err, session.ErrSessionMismatch) {
			c.logger.Error("protocol violation: upload acknowledged under another session", map[string]any{
				"file":     blob.Name,
				"bound":    sid,
				"returned": ackID,
			})
		}
		return c.failed(fd, types.NewError(types.ErrUpload, "bind", sid, err))
	}
	if res.Kind == types.BindCreated {
		c.logger.Info("session created", map[string]any{"session_id": res.SessionID})
		if c.OnBind != nil {
			c.OnBind(res)
		}
	}

	if ack.Size > 0 {
		fd.Size = ack.Size
	}
	fd.Outcome = types.UploadSuccess
	c.logger.Info("file uploaded", map[string]any{
		"file":       fd.Name,
		"size":       fd.Size,
		"session_id": res.SessionID,
		"bind":       string(res.Kind),
	})
	return fd
}

func (c *Coordinator) failed(fd types.FileDescriptor, err error) types.FileDescriptor {
	fd.Outcome = types.UploadFailed
	fd.Reason = err.Error()
	c.logger.Warn("file upload failed", map[string]any{"file": fd.Name, "error": err.Error()})
	return fd
}
