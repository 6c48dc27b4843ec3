package types

import (
	"errors"
	"io"
	"testing"
)

func TestError_IsAndUnwrap(t *testing.T) {
	err := NewError(ErrMetadata, "backup-info", "sess-1", io.ErrUnexpectedEOF)

	if !errors.Is(err, ErrMetadata) {
		t.Error("expected errors.Is(err, ErrMetadata)")
	}
	if errors.Is(err, ErrTrigger) {
		t.Error("unexpected match on ErrTrigger")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("underlying error must stay in the chain")
	}

	var e *Error
	if !errors.As(err, &e) || e.Op != "backup-info" || e.SessionID != "sess-1" {
		t.Errorf("errors.As = %+v", e)
	}

	want := "backup-info [sess-1]: artifact metadata unavailable: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewError_Nil(t *testing.T) {
	if err := NewError(ErrUpload, "upload", "", nil); err != nil {
		t.Errorf("NewError(nil) = %v, want nil", err)
	}
}

func TestSessionStatus_Classification(t *testing.T) {
	inFlight := map[SessionStatus]bool{
		StatusTriggering:  true,
		StatusPolling:     true,
		StatusCompleted:   true,
		StatusDownloading: true,
	}
	terminal := map[SessionStatus]bool{
		StatusDone:     true,
		StatusTimedOut: true,
		StatusFailed:   true,
	}
	all := []SessionStatus{
		StatusIdle, StatusUploading, StatusUploadsReady, StatusTriggering, StatusPolling,
		StatusCompleted, StatusDownloading, StatusDone, StatusTimedOut, StatusFailed,
	}
	for _, s := range all {
		if got := s.IsJobInFlight(); got != inFlight[s] {
			t.Errorf("%s.IsJobInFlight() = %v", s, got)
		}
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v", s, got)
		}
	}
}
