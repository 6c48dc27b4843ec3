package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/types"
)

// BackupReport is the structured JSON report written by --report.
type BackupReport struct {
	SessionID  string              `json:"session_id"`
	Outcome    types.SessionStatus `json:"outcome"`
	Message    string              `json:"message"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`

	Manifest       []types.FileDescriptor `json:"manifest"`
	FilesUploaded  int                    `json:"files_uploaded"`
	FilesFailed    int                    `json:"files_failed"`
	Attempts       int                    `json:"attempts"`
	LastSnapshot   *types.StatusSnapshot  `json:"last_snapshot,omitempty"`
	CompletionPath types.CompletionPath   `json:"completion_path,omitempty"`
	Percent        int                    `json:"percent"`
	Warnings       []string               `json:"warnings,omitempty"`

	Artifact *types.ArtifactInfo `json:"artifact,omitempty"`
	Delivery *ReportDelivery     `json:"delivery,omitempty"`
	Metrics  *metrics.Snapshot   `json:"metrics"`
}

// ReportDelivery holds the artifact delivery in the report.
type ReportDelivery struct {
	Backend    string `json:"backend"`
	Location   string `json:"location"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// BuildBackupReport composes a BackupReport. res may be nil when no trigger
// cycle ran (e.g. every upload failed).
func BuildBackupReport(view types.SessionView, res *CycleResult, snap metrics.Snapshot, outcome Outcome) *BackupReport {
	report := &BackupReport{
		SessionID:     view.ID,
		Outcome:       view.Status,
		Message:       outcome.Message,
		ExitCode:      outcome.ExitCode,
		Manifest:      view.Manifest,
		FilesUploaded: view.SucceededCount(),
		Metrics:       &snap,
	}
	report.FilesFailed = len(view.Manifest) - report.FilesUploaded
	if report.Manifest == nil {
		report.Manifest = []types.FileDescriptor{}
	}

	if res == nil {
		return report
	}
	if res.SessionID != "" {
		report.SessionID = res.SessionID
	}
	if res.Status != "" {
		report.Outcome = res.Status
	}
	report.DurationMs = res.Duration.Milliseconds()
	report.Attempts = res.Attempts
	report.LastSnapshot = res.Last
	report.CompletionPath = res.Path
	report.Percent = res.Percent
	report.Warnings = res.Warnings
	report.Artifact = res.Artifact
	if d := res.Delivery; d != nil {
		report.Delivery = &ReportDelivery{
			Backend:    d.Backend,
			Location:   d.Location,
			Bytes:      d.Bytes,
			DurationMs: d.Duration.Milliseconds(),
		}
		if d.Err != nil {
			report.Delivery.Error = d.Err.Error()
		}
	}
	return report
}

// WriteBackupReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteBackupReport(report *BackupReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeBackupReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeBackupReportTo writes report JSON to any writer (for testing).
func writeBackupReportTo(report *BackupReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *BackupReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
