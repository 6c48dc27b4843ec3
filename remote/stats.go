package remote

import (
	"context"
	"errors"
	"time"

	"github.com/MateoLopez004/Gobackup/types"
)

// BackupList is the service's inventory of finished archives.
type BackupList struct {
	Backups []types.ArtifactInfo `json:"backups"`
	Count   int                  `json:"count"`
}

// Health is the service's readiness report.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
	Uploads   string `json:"uploads,omitempty"`
	Backups   string `json:"backups,omitempty"`
	Temp      string `json:"temp,omitempty"`
}

// Up reports whether the service declared itself healthy.
func (h *Health) Up() bool {
	return h != nil && h.Status == "up"
}

// ServerStats is the service's disk and directory usage.
type ServerStats struct {
	Uploads struct {
		Files int    `json:"files"`
		Dir   string `json:"dir"`
	} `json:"uploads"`
	Backups struct {
		Files int    `json:"files"`
		Size  int64  `json:"size"`
		Dir   string `json:"dir"`
	} `json:"backups"`
	Disk struct {
		Free  int64 `json:"free"`
		Total int64 `json:"total"`
		Used  int64 `json:"used"`
	} `json:"disk"`
	Sessions  int    `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

// StatsSummary is the aggregated backup report. Values other than the count
// are preformatted by the service.
type StatsSummary struct {
	TotalBackups int    `json:"total_backups"`
	TotalSizeMB  string `json:"total_size_mb"`
	AvgSizeMB    string `json:"avg_size_mb"`
	AvgDuration  string `json:"avg_duration"`
	BackupsTrend string `json:"backups_trend"`
	SpaceTrend   string `json:"space_trend"`
	MaxSize      string `json:"max_size"`
	MinDuration  string `json:"min_duration"`
}

// HistoryEntry is one past backup job.
type HistoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	SessionID       string    `json:"session_id"`
	TotalSize       int64     `json:"total_size"`
	FilesCount      int       `json:"files_count"`
	BackupType      string    `json:"backup_type"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
}

// History is the list of past backup jobs.
type History struct {
	Backups []HistoryEntry `json:"backups"`
}

// FileTypeStat is the volume of one file extension across backups.
type FileTypeStat struct {
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Count int    `json:"count,omitempty"`
}

// FileTypes is the breakdown of backed-up bytes by file type.
type FileTypes struct {
	FileTypes []FileTypeStat `json:"file_types"`
	TotalSize int64          `json:"total_size"`
}

// ListBackups returns the archives known to the service.
func (c *Client) ListBackups(ctx context.Context) (*BackupList, error) {
	var list BackupList
	if err := c.getJSON(ctx, "backups", c.endpoint("backups"), &list); err != nil {
		return nil, err
	}
	for i := range list.Backups {
		list.Backups[i].DownloadURL = c.Resolve(list.Backups[i].DownloadURL)
	}
	return &list, nil
}

// Health fetches the readiness report. A 503 still returns the decoded
// report alongside the StatusError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	err := c.getJSON(ctx, "health", c.endpoint("health"), &h)
	if err == nil {
		return &h, nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return &Health{Status: "down", Error: se.Message}, err
	}
	return nil, err
}

// ServerStats fetches disk and directory usage.
func (c *Client) ServerStats(ctx context.Context) (*ServerStats, error) {
	var s ServerStats
	if err := c.getJSON(ctx, "stats", c.endpoint("stats"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StatsSummary fetches the aggregated backup report.
func (c *Client) StatsSummary(ctx context.Context) (*StatsSummary, error) {
	var s StatsSummary
	if err := c.getJSON(ctx, "stats summary", c.endpoint("api", "stats", "summary"), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StatsHistory fetches past backup jobs.
func (c *Client) StatsHistory(ctx context.Context) (*History, error) {
	var h History
	if err := c.getJSON(ctx, "stats history", c.endpoint("api", "stats", "history"), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// StatsFileTypes fetches the per-extension breakdown.
func (c *Client) StatsFileTypes(ctx context.Context) (*FileTypes, error) {
	var f FileTypes
	if err := c.getJSON(ctx, "stats filetypes", c.endpoint("api", "stats", "filetypes"), &f); err != nil {
		return nil, err
	}
	return &f, nil
}
