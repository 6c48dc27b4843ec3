// Package adapter defines the notification boundary for finished backup cycles.
//
// Adapters publish one event per trigger cycle that reaches a terminal state
// (done, timed out or failed). The orchestrator owns adapter lifecycle;
// users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MateoLopez004/Gobackup/types"
)

// EventTypeBackupFinished is the event_type of every published event.
const EventTypeBackupFinished = "backup_finished"

// BackupFinishedEvent is the payload published when a trigger cycle ends.
type BackupFinishedEvent struct {
	SchemaVersion    string `json:"schema_version"`
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type"` // always "backup_finished"
	SessionID        string `json:"session_id"`
	Outcome          string `json:"outcome"` // done, timed_out, failed
	CompletionPath   string `json:"completion_path,omitempty"`
	FilesUploaded    int    `json:"files_uploaded"`
	FilesFailed      int    `json:"files_failed"`
	TotalFiles       int    `json:"total_files"`
	FilesCopied      int    `json:"files_copied"`
	Warnings         int    `json:"warnings"`
	ArtifactSize     int64  `json:"artifact_size,omitempty"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	Error            string `json:"error,omitempty"`
	Timestamp        string `json:"timestamp"` // ISO 8601
	DurationMs       int64  `json:"duration_ms"`
}

// NewBackupFinishedEvent returns an event stamped with a fresh id,
// the current schema version and the given time.
func NewBackupFinishedEvent(sessionID string, outcome types.SessionStatus, at time.Time) *BackupFinishedEvent {
	return &BackupFinishedEvent{
		SchemaVersion: types.Version,
		EventID:       uuid.NewString(),
		EventType:     EventTypeBackupFinished,
		SessionID:     sessionID,
		Outcome:       string(outcome),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes backup completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *BackupFinishedEvent) error

	// Close releases adapter resources.
	Close() error
}
