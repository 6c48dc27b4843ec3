// Package remote is the HTTP client for the gobackup service.
//
// The service is request/response only: uploads, job trigger, status polling,
// artifact metadata and the artifact stream. There is no push channel; callers
// poll Status until the job is resolved.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MateoLopez004/Gobackup/iox"
	"github.com/MateoLopez004/Gobackup/types"
)

// DefaultTimeout bounds every request except uploads and downloads,
// which are bounded by the caller's context only.
const DefaultTimeout = 30 * time.Second

// MaxUploadSize is the per-file limit enforced by the service.
const MaxUploadSize = 100 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8080 (required).
	BaseURL string
	// Timeout bounds non-streaming requests (default 30s).
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client talks to one gobackup service.
type Client struct {
	base    *url.URL
	headers map[string]string
	api     *http.Client
	stream  *http.Client
}

// UploadAck is the service's acknowledgement of one uploaded file.
type UploadAck struct {
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	UploadPath string `json:"uploadPath"`
}

// TriggerAck is the service's acceptance of a backup job.
type TriggerAck struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Files     int    `json:"files"`
}

// New creates a Client. Returns an error if BaseURL is missing or invalid.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: base URL must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		base:    base,
		headers: cfg.Headers,
		api:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		stream:  &http.Client{Transport: cfg.Transport},
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// DownloadURL returns the absolute artifact URL for a session.
func (c *Client) DownloadURL(sessionID string) string {
	return c.endpoint("download", sessionID)
}

// Resolve makes a service-relative link such as "/download/abc" absolute.
func (c *Client) Resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// Upload sends one file. sessionID is attached when non-empty so the file
// joins an existing session; otherwise the service creates one.
func (c *Client) Upload(ctx context.Context, sessionID string, blob types.Blob) (*UploadAck, error) {
	const op = "upload"
	if blob.Size > MaxUploadSize {
		return nil, &StatusError{Op: op, Code: http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("%s is %d bytes, limit is %d", blob.Name, blob.Size, MaxUploadSize)}
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, sessionID, blob))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("upload"), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var ack UploadAck
	if err := c.do(c.stream, req, op, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func writeUploadForm(form *multipart.Writer, sessionID string, blob types.Blob) error {
	if sessionID != "" {
		if err := form.WriteField("sessionId", sessionID); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", blob.Name)
	if err != nil {
		return err
	}
	rc, err := blob.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", blob.Name, err)
	}
	defer iox.DiscardClose(rc)
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("read %s: %w", blob.Name, err)
	}
	return form.Close()
}

// Trigger starts the backup job for a session.
func (c *Client) Trigger(ctx context.Context, sessionID string) (*TriggerAck, error) {
	body, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("trigger: marshal: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("backup"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var ack TriggerAck
	if err := c.do(c.api, req, "trigger", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Status fetches the current job status snapshot.
func (c *Client) Status(ctx context.Context) (*types.StatusSnapshot, error) {
	var snap types.StatusSnapshot
	if err := c.getJSON(ctx, "status", c.endpoint("status"), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ArtifactInfo fetches metadata for a session's finished archive.
func (c *Client) ArtifactInfo(ctx context.Context, sessionID string) (*types.ArtifactInfo, error) {
	var info types.ArtifactInfo
	if err := c.getJSON(ctx, "backup-info", c.endpoint("backup-info", sessionID), &info); err != nil {
		return nil, err
	}
	if info.SessionID == "" {
		info.SessionID = sessionID
	}
	return &info, nil
}

// Download opens the archive stream for a session. The caller must close the
// returned reader. size is -1 when the service sends no Content-Length.
func (c *Client) Download(ctx context.Context, sessionID string) (rc io.ReadCloser, size int64, err error) {
	const op = "download"
	req, err := c.newRequest(ctx, http.MethodGet, c.DownloadURL(sessionID), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer iox.DrainClose(resp.Body)
		return nil, 0, decodeStatusError(op, resp)
	}
	return resp.Body, resp.ContentLength, nil
}

// Cleanup asks the service to delete a session's uploads and archive.
func (c *Client) Cleanup(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("cleanup", sessionID), nil)
	if err != nil {
		return err
	}
	return c.do(c.api, req, "cleanup", nil)
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.JoinPath(escaped...).String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, target string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(c.api, req, op, out)
}

// do performs req and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(hc *http.Client, req *http.Request, op string, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeStatusError(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &StatusError{Op: op, Code: resp.StatusCode, Message: body.Error}
}
