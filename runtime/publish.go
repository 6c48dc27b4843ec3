package runtime

import (
	"time"

	"github.com/MateoLopez004/Gobackup/adapter"
	"github.com/MateoLopez004/Gobackup/types"
)

// BuildFinishedEvent composes the completion event for a finished cycle.
func BuildFinishedEvent(view types.SessionView, res CycleResult, at time.Time) *adapter.BackupFinishedEvent {
	event := adapter.NewBackupFinishedEvent(res.SessionID, res.Status, at)
	event.CompletionPath = string(res.Path)
	event.FilesUploaded = view.SucceededCount()
	event.FilesFailed = len(view.Manifest) - event.FilesUploaded
	event.Warnings = len(res.Warnings)
	event.DurationMs = res.Duration.Milliseconds()

	if res.Last != nil {
		event.TotalFiles = res.Last.TotalFiles
		event.FilesCopied = res.Last.FilesCopied
	}
	if res.Artifact != nil {
		event.ArtifactSize = res.Artifact.Size
	}
	if res.Delivery != nil {
		event.ArtifactLocation = res.Delivery.Location
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	return event
}
