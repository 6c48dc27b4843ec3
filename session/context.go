// Package session owns the identity and manifest of the current backup session.
//
// A Context is the single writer of session state. Every mutation carries the
// generation observed by the caller; after Reset the generation advances and
// mutations from earlier work are rejected with ErrStale. This is how late
// upload acknowledgements, poll results and retrieval callbacks are discarded.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MateoLopez004/Gobackup/types"
)

var (
	// ErrEmptySessionID is returned when binding an empty id.
	ErrEmptySessionID = errors.New("session: empty session id")
	// ErrSessionMismatch is returned when the service reports a different id
	// than the one already bound. This is a protocol violation.
	ErrSessionMismatch = errors.New("session: id mismatch")
	// ErrStale is returned for mutations made on behalf of a reset session.
	ErrStale = errors.New("session: stale generation")
	// ErrInvalidTransition is returned when the current status does not allow
	// the requested transition.
	ErrInvalidTransition = errors.New("session: invalid status transition")
)

// Context holds the state of one backup session.
// Safe for concurrent use.
type Context struct {
	mu sync.Mutex

	id                string
	status            types.SessionStatus
	manifest          []types.FileDescriptor
	downloadTriggered bool
	generation        uint64
}

// New returns an idle, unbound session context.
func New() *Context {
	return &Context{status: types.StatusIdle}
}

// Generation returns the current reset generation.
func (c *Context) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// ID returns the bound session id, or "" when unbound.
func (c *Context) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Status returns the lifecycle status.
func (c *Context) Status() types.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// View returns a copy of the session state.
func (c *Context) View() types.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.SessionView{
		ID:                c.id,
		Status:            c.status,
		Manifest:          slices.Clone(c.manifest),
		DownloadTriggered: c.downloadTriggered,
		Generation:        c.generation,
	}
}

// Bind records the service-assigned session id (create-or-attach).
// Binding an unbound session yields BindCreated; binding the same id again
// yields BindAttached and changes nothing. A different id while bound fails
// with ErrSessionMismatch.
func (c *Context) Bind(gen uint64, id string) (types.BindResult, error) {
	if id == "" {
		return types.BindResult{}, ErrEmptySessionID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return types.BindResult{}, ErrStale
	}
	switch c.id {
	case "":
		c.id = id
		return types.BindResult{Kind: types.BindCreated, SessionID: id}, nil
	case id:
		return types.BindResult{Kind: types.BindAttached, SessionID: id}, nil
	default:
		return types.BindResult{}, fmt.Errorf("%w: bound %q, service returned %q", ErrSessionMismatch, c.id, id)
	}
}

// AppendFile adds an entry to the manifest.
func (c *Context) AppendFile(gen uint64, fd types.FileDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return ErrStale
	}
	c.manifest = append(c.manifest, fd)
	return nil
}

// Transition moves the session to status to. When from is non-empty, the
// current status must be one of them.
func (c *Context) Transition(gen uint64, to types.SessionStatus, from ...types.SessionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return ErrStale
	}
	if len(from) > 0 && !slices.Contains(from, c.status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.status, to)
	}
	c.status = to
	return nil
}

// MarkDownloadTriggered sets the download guard. It returns false if the
// guard was already set or gen is stale, in which case the caller must not
// start a download.
func (c *Context) MarkDownloadTriggered(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.downloadTriggered {
		return false
	}
	c.downloadTriggered = true
	return true
}

// DownloadTriggered reports whether the download guard is set.
func (c *Context) DownloadTriggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloadTriggered
}

// Reset clears id, manifest, status and guard in one step and advances the
// generation. Callable from any state. Returns the new generation.
func (c *Context) Reset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = ""
	c.status = types.StatusIdle
	c.manifest = nil
	c.downloadTriggered = false
	c.generation++
	return c.generation
}
