package runtime

import (
	"github.com/MateoLopez004/Gobackup/artifact"
	"github.com/MateoLopez004/Gobackup/types"
)

// EventKind identifies an orchestration event.
type EventKind string

// Event kinds, in the order a successful session emits them.
const (
	EventSessionBound   EventKind = "session_bound"
	EventFileUploaded   EventKind = "file_uploaded"
	EventTriggered      EventKind = "triggered"
	EventProgress       EventKind = "progress"
	EventWarning        EventKind = "warning"
	EventTransportError EventKind = "transport_error"
	EventCompleted      EventKind = "completed"
	EventRetrieved      EventKind = "retrieved"
	EventDelivered      EventKind = "delivered"
	EventFinished       EventKind = "finished"
	EventReset          EventKind = "reset"
)

// Event is a notification about session progress. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	SessionID string

	// File is set for EventFileUploaded.
	File *types.FileDescriptor
	// Attempt is the poll attempt for tick events.
	Attempt int
	// Resolution is set for EventProgress and EventCompleted.
	Resolution *types.Resolution
	// Snapshot is the status snapshot behind a tick event.
	Snapshot *types.StatusSnapshot
	// Warning is set for EventWarning.
	Warning string
	// Artifact is set for EventRetrieved.
	Artifact *types.ArtifactInfo
	// Delivery is set for EventDelivered.
	Delivery *artifact.Delivery
	// Status is the session status for EventFinished.
	Status types.SessionStatus
	// Err carries the failure for EventTransportError and EventFinished.
	Err error
}

// Observer receives events. It is called synchronously from the goroutine
// that produced the event and must not block or call back into the
// Orchestrator.
type Observer func(Event)
