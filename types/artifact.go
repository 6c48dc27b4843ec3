package types

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// ArtifactInfo is the service's metadata for a finished backup archive.
type ArtifactInfo struct {
	SessionID string `json:"sessionId" yaml:"session_id"`
	Filename  string `json:"filename" yaml:"filename"`
	// Size is the archive size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// SizeMB is preformatted by the service, e.g. "3.14 MB".
	SizeMB      string `json:"sizeMB" yaml:"size_mb"`
	Created     string `json:"created" yaml:"created"`
	DownloadURL string `json:"downloadUrl" yaml:"download_url"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
}

// ArtifactName returns the archive file name for a session.
func ArtifactName(sessionID string) string {
	return sessionID + ".zip"
}

// Blob is a file to upload. Open is called once per upload attempt.
type Blob struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileBlob returns a Blob backed by a file on disk.
func FileBlob(path string) (Blob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Blob{}, err
	}
	return Blob{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// BytesBlob returns a Blob over an in-memory payload.
func BytesBlob(name string, data []byte) Blob {
	return Blob{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
