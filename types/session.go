// Package types defines core domain types for the gobackup client.
//
//nolint:revive // types is a common Go package naming convention
package types

// SessionStatus is the lifecycle state of a backup session.
type SessionStatus string

// Session status constants.
const (
	// StatusIdle means no session is bound and nothing is in flight.
	StatusIdle SessionStatus = "idle"
	// StatusUploading means a batch of files is being submitted.
	StatusUploading SessionStatus = "uploading"
	// StatusUploadsReady means at least one file is bound to the session.
	StatusUploadsReady SessionStatus = "uploads_ready"
	// StatusTriggering means the backup job request has been sent.
	StatusTriggering SessionStatus = "triggering"
	// StatusPolling means the job was accepted and status is being polled.
	StatusPolling SessionStatus = "polling"
	// StatusCompleted means completion was resolved; retrieval is pending.
	StatusCompleted SessionStatus = "completed"
	// StatusDownloading means artifact metadata is being fetched.
	StatusDownloading SessionStatus = "downloading"
	// StatusDone means the artifact download was triggered.
	StatusDone SessionStatus = "done"
	// StatusTimedOut means polling reached its attempt ceiling.
	StatusTimedOut SessionStatus = "timed_out"
	// StatusFailed means the trigger or metadata fetch failed.
	StatusFailed SessionStatus = "failed"
)

// IsJobInFlight reports whether a backup job is active for the session.
// Uploads and new triggers are rejected while a job is in flight.
func (s SessionStatus) IsJobInFlight() bool {
	switch s {
	case StatusTriggering, StatusPolling, StatusCompleted, StatusDownloading:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a trigger cycle has ended in this status.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusTimedOut || s == StatusFailed
}

// UploadOutcome is the per-file result of an upload attempt.
type UploadOutcome string

const (
	// UploadSuccess means the service acknowledged the file.
	UploadSuccess UploadOutcome = "success"
	// UploadFailed means the file was rejected or never reached the service.
	UploadFailed UploadOutcome = "failed"
)

// FileDescriptor is a manifest entry for one uploaded file.
type FileDescriptor struct {
	// Name is the file name as sent to the service.
	Name string `json:"name" yaml:"name"`
	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Outcome is the upload result.
	Outcome UploadOutcome `json:"outcome" yaml:"outcome"`
	// Reason describes the failure (empty on success).
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Succeeded reports whether the file was acknowledged by the service.
func (f FileDescriptor) Succeeded() bool {
	return f.Outcome == UploadSuccess
}

// BindKind distinguishes session creation from attachment.
type BindKind string

const (
	// BindCreated means the id was assigned to an unbound session.
	BindCreated BindKind = "created"
	// BindAttached means the id matched the already bound session.
	BindAttached BindKind = "attached"
)

// BindResult is the outcome of binding a service-assigned session id.
type BindResult struct {
	Kind      BindKind
	SessionID string
}

// SessionView is a read-only copy of session state.
type SessionView struct {
	// ID is the bound session id (empty when unbound).
	ID string `json:"session_id"`
	// Status is the lifecycle status.
	Status SessionStatus `json:"status"`
	// Manifest lists uploaded files in submission order.
	Manifest []FileDescriptor `json:"manifest"`
	// DownloadTriggered is the retrieval guard.
	DownloadTriggered bool `json:"download_triggered"`
	// Generation increments on every reset.
	Generation uint64 `json:"generation"`
}

// SucceededCount returns the number of acknowledged files.
func (v SessionView) SucceededCount() int {
	n := 0
	for _, f := range v.Manifest {
		if f.Succeeded() {
			n++
		}
	}
	return n
}
