package lode

import (
	"errors"
	"os"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"typed timeout", timeoutErr{}, ErrTimeout},
		{"deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"eacces", &os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, ErrPermissionDenied},
		{"s3 forbidden", errors.New("api error AccessDenied: Access Denied"), ErrAccessDenied},
		{"enoent", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, ErrNotFound},
		{"no such bucket", errors.New("NoSuchBucket: bucket gone"), ErrNotFound},
		{"exists", errors.New("path already exists"), ErrExists},
		{"disk full", errors.New("write: no space left on device"), ErrDiskFull},
		{"throttled", errors.New("SlowDown"), ErrThrottled},
		{"auth", errors.New("ExpiredToken: token expired"), ErrAuth},
		{"network", errors.New("dial tcp: lookup minio: no such host"), ErrNetwork},
		{"other", errors.New("something odd"), errUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapHelpers_Nil(t *testing.T) {
	if WrapWriteError(nil, "p") != nil || WrapReadError(nil, "p") != nil || WrapInitError(nil, "l") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestStorageError_Chain(t *testing.T) {
	base := errors.New("NoSuchKey")
	err := WrapReadError(base, "artifacts/a.zip")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected kind match")
	}
	if !errors.Is(err, base) {
		t.Error("expected underlying error in chain")
	}
	if got, want := err.Error(), "read artifacts/a.zip: not found: NoSuchKey"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
