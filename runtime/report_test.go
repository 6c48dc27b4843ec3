package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MateoLopez004/Gobackup/artifact"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/types"
)

func newTestView() types.SessionView {
	return types.SessionView{
		ID:     "sess-0001",
		Status: types.StatusDone,
		Manifest: []types.FileDescriptor{
			{Name: "a.txt", Size: 100, Outcome: types.UploadSuccess},
			{Name: "b.txt", Size: 2048, Outcome: types.UploadSuccess},
			{Name: "huge.iso", Size: 0, Outcome: types.UploadFailed, Reason: "file too large"},
		},
		DownloadTriggered: true,
	}
}

func newTestCycleResult() *CycleResult {
	return &CycleResult{
		SessionID: "sess-0001",
		Status:    types.StatusDone,
		Path:      types.PathPrimary,
		Percent:   100,
		Attempts:  4,
		Last:      &types.StatusSnapshot{TotalFiles: 2, FilesCopied: 2},
		Warnings:  []string{"skipped x.tmp"},
		Artifact: &types.ArtifactInfo{
			SessionID: "sess-0001",
			Filename:  "sess-0001.zip",
			Size:      2148,
			SizeMB:    "0.00 MB",
		},
		Delivery: &artifact.Delivery{
			SessionID: "sess-0001",
			Backend:   artifact.BackendFS,
			Location:  "file:///backups/artifacts/sess-0001.zip",
			Bytes:     2148,
			Duration:  150 * time.Millisecond,
		},
		Duration: 8 * time.Second,
	}
}

func newTestSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		UploadsSucceeded: 2,
		UploadsFailed:    1,
		TriggersAccepted: 1,
		PollTicks:        4,
		Server:           "http://localhost:8080",
		OutputBackend:    "fs",
	}
}

func TestBuildBackupReport_Success(t *testing.T) {
	report := BuildBackupReport(newTestView(), newTestCycleResult(), newTestSnapshot(), Outcome{ExitCode: 0, Message: "backup retrieved"})

	if report.SessionID != "sess-0001" {
		t.Errorf("SessionID = %q", report.SessionID)
	}
	if report.Outcome != types.StatusDone {
		t.Errorf("Outcome = %q", report.Outcome)
	}
	if report.FilesUploaded != 2 || report.FilesFailed != 1 {
		t.Errorf("files = %d/%d, want 2/1", report.FilesUploaded, report.FilesFailed)
	}
	if report.DurationMs != 8000 {
		t.Errorf("DurationMs = %d, want 8000", report.DurationMs)
	}
	if report.Delivery == nil || report.Delivery.Bytes != 2148 || report.Delivery.DurationMs != 150 {
		t.Errorf("Delivery = %+v", report.Delivery)
	}
	if report.Metrics == nil || report.Metrics.PollTicks != 4 {
		t.Errorf("Metrics = %+v", report.Metrics)
	}
}

func TestBuildBackupReport_DeliveryError(t *testing.T) {
	res := newTestCycleResult()
	res.Delivery.Err = types.NewError(types.ErrDelivery, "deliver", "sess-0001", errors.New("disk full"))

	report := BuildBackupReport(newTestView(), res, newTestSnapshot(), Outcome{ExitCode: 3})
	if report.Delivery.Error == "" {
		t.Error("delivery error missing from report")
	}
	if report.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", report.ExitCode)
	}
}

func TestBuildBackupReport_NoCycle(t *testing.T) {
	view := types.SessionView{Status: types.StatusIdle}
	report := BuildBackupReport(view, nil, metrics.Snapshot{}, Outcome{ExitCode: 1, Message: "every upload failed"})

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, key := range []string{"artifact", "delivery", "last_snapshot", "completion_path"} {
		if _, ok := raw[key]; ok {
			t.Errorf("key %q present, want omitted", key)
		}
	}
	if manifest, ok := raw["manifest"].([]any); !ok || len(manifest) != 0 {
		t.Errorf("manifest = %v, want empty array", raw["manifest"])
	}
}

func TestWriteBackupReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := BuildBackupReport(newTestView(), newTestCycleResult(), newTestSnapshot(), Outcome{Message: "ok"})

	if err := WriteBackupReport(report, path); err != nil {
		t.Fatalf("WriteBackupReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}

	var decoded BackupReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.SessionID != "sess-0001" || decoded.CompletionPath != types.PathPrimary {
		t.Errorf("decoded = %+v", decoded)
	}
	if data[len(data)-1] != '\n' {
		t.Error("report should end with newline")
	}
}

func TestWriteBackupReport_EmptyPath(t *testing.T) {
	if err := WriteBackupReport(&BackupReport{}, ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWriteBackupReportTo_Writer(t *testing.T) {
	var buf bytes.Buffer
	report := BuildBackupReport(newTestView(), newTestCycleResult(), newTestSnapshot(), Outcome{})
	if err := writeBackupReportTo(report, &buf); err != nil {
		t.Fatalf("writeBackupReportTo failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"session_id": "sess-0001"`)) {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestBuildFinishedEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := BuildFinishedEvent(newTestView(), *newTestCycleResult(), at)

	if event.EventType != "backup_finished" || event.Outcome != "done" {
		t.Errorf("event = %+v", event)
	}
	if event.FilesUploaded != 2 || event.FilesFailed != 1 {
		t.Errorf("files = %d/%d", event.FilesUploaded, event.FilesFailed)
	}
	if event.TotalFiles != 2 || event.FilesCopied != 2 || event.Warnings != 1 {
		t.Errorf("counts = %+v", event)
	}
	if event.ArtifactSize != 2148 || event.ArtifactLocation == "" {
		t.Errorf("artifact = %d %q", event.ArtifactSize, event.ArtifactLocation)
	}
	if event.Timestamp != "2026-03-01T12:00:00Z" || event.DurationMs != 8000 {
		t.Errorf("timing = %q %d", event.Timestamp, event.DurationMs)
	}
	if event.EventID == "" {
		t.Error("EventID is empty")
	}
}
