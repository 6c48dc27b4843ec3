// Package remotetest provides an in-process fake of the gobackup service for
// tests. It speaks the same wire format as the real service and records every
// call it receives.
package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/MateoLopez004/Gobackup/types"
)

// Upload is one file received by the fake.
type Upload struct {
	// SentSessionID is the sessionId form field ("" when absent).
	SentSessionID string
	// SessionID is the id the fake acknowledged.
	SessionID string
	Filename  string
	Size      int64
}

// Server is a fake gobackup service.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	idSeq          int
	ackOverride    string
	rejected       map[string]string
	triggerCode    int
	triggerMessage string

	script      []types.StatusSnapshot
	failStatus  map[int]bool
	statusCalls int

	artifacts map[string][]byte
	infoCode  int

	healthDown bool

	uploads       []Upload
	triggers      []string
	infoCalls     int
	downloadCalls int
	cleanups      []string
}

// NewServer starts a fake service. It is closed by t.Cleanup when a
// cleanup registrar is passed, otherwise the caller must call Close.
func NewServer(cleanup func(func())) *Server {
	s := &Server{
		rejected:   make(map[string]string),
		failStatus: make(map[int]bool),
		artifacts:  make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /backup", s.handleBackup)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /backup-info/{id}", s.handleInfo)
	mux.HandleFunc("GET /download/{id}", s.handleDownload)
	mux.HandleFunc("POST /cleanup/{id}", s.handleCleanup)
	mux.HandleFunc("GET /backups", s.handleList)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats/summary", s.handleSummary)

	s.Server = httptest.NewServer(mux)
	if cleanup != nil {
		cleanup(s.Close)
	}
	return s
}

// FailHealth makes GET /health report the service down with a 503.
func (s *Server) FailHealth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthDown = true
}

// RejectFile makes uploads of name fail with a 400 and message.
func (s *Server) RejectFile(name, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[name] = message
}

// AckSessionID forces every upload acknowledgement to carry id,
// regardless of the sessionId sent.
func (s *Server) AckSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackOverride = id
}

// FailTrigger makes POST /backup answer code with message.
func (s *Server) FailTrigger(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerCode = code
	s.triggerMessage = message
}

// ScriptStatus sets the snapshots returned by successive GET /status calls.
// The last snapshot repeats once the script is exhausted.
func (s *Server) ScriptStatus(snaps ...types.StatusSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = snaps
}

// FailStatusCalls makes the given 1-based GET /status calls answer 503.
// Failed calls do not consume the script.
func (s *Server) FailStatusCalls(calls ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range calls {
		s.failStatus[n] = true
	}
}

// SetArtifact registers archive bytes for a session.
func (s *Server) SetArtifact(sessionID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[sessionID] = data
}

// FailInfo makes GET /backup-info answer code.
func (s *Server) FailInfo(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoCode = code
}

// Uploads returns the files received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Triggers returns the session ids of received trigger requests.
func (s *Server) Triggers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.triggers...)
}

// StatusCalls returns the number of GET /status requests.
func (s *Server) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

// InfoCalls returns the number of GET /backup-info requests.
func (s *Server) InfoCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoCalls
}

// DownloadCalls returns the number of GET /download requests.
func (s *Server) DownloadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadCalls
}

// Cleanups returns the session ids passed to POST /cleanup.
func (s *Server) Cleanups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleanups...)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file received"})
		return
	}
	size, _ := io.Copy(io.Discard, file)
	_ = file.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.rejected[header.Filename]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	sent := r.FormValue("sessionId")
	id := sent
	if id == "" {
		s.idSeq++
		id = fmt.Sprintf("sess-%04d", s.idSeq)
	}
	if s.ackOverride != "" {
		id = s.ackOverride
	}
	s.uploads = append(s.uploads, Upload{SentSessionID: sent, SessionID: id, Filename: header.Filename, Size: size})

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "file uploaded",
		"sessionId":  id,
		"filename":   header.Filename,
		"size":       size,
		"uploadPath": "/uploads/" + id + "/" + header.Filename,
	})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request or missing sessionId"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers = append(s.triggers, req.SessionID)
	if s.triggerCode != 0 {
		writeJSON(w, s.triggerCode, map[string]string{"error": s.triggerMessage})
		return
	}
	files := 0
	for _, u := range s.uploads {
		if u.SessionID == req.SessionID {
			files++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "backup started",
		"sessionId": req.SessionID,
		"files":     files,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusCalls++
	if s.failStatus[s.statusCalls] {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status unavailable"})
		return
	}

	var snap types.StatusSnapshot
	switch len(s.script) {
	case 0:
	case 1:
		snap = s.script[0]
	default:
		snap = s.script[0]
		s.script = s.script[1:]
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.infoCalls++
	if s.infoCode != 0 {
		writeJSON(w, s.infoCode, map[string]string{"error": "info unavailable"})
		return
	}
	data, ok := s.artifacts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.info(id, data))
}

func (s *Server) info(id string, data []byte) map[string]any {
	return map[string]any{
		"sessionId":   id,
		"filename":    types.ArtifactName(id),
		"size":        len(data),
		"sizeMB":      fmt.Sprintf("%.2f MB", float64(len(data))/1024/1024),
		"created":     "2026-03-01T12:00:00Z",
		"downloadUrl": "/download/" + id,
		"status":      "available",
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	s.downloadCalls++
	data, ok := s.artifacts[id]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup not found"})
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+types.ArtifactName(id)+`"`)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanups = append(s.cleanups, id)
	delete(s.artifacts, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "session cleaned", "sessionId": id})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups := make([]map[string]any, 0, len(s.artifacts))
	for id, data := range s.artifacts {
		backups = append(backups, s.info(id, data))
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups, "count": len(backups)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	down := s.healthDown
	s.mu.Unlock()

	if down {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down", "error": "backup directory not writable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "up", "timestamp": "2026-03-01T12:00:00Z"})
}

// handleSummary aggregates the registered archives.
func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	for _, data := range s.artifacts {
		total += len(data)
	}
	avg := 0.0
	if n := len(s.artifacts); n > 0 {
		avg = float64(total) / float64(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_backups": len(s.artifacts),
		"total_size_mb": fmt.Sprintf("%.2f", float64(total)/1024/1024),
		"avg_size_mb":   fmt.Sprintf("%.2f", avg/1024/1024),
		"avg_duration":  "0s",
		"backups_trend": "+0.0%",
		"space_trend":   "+0.0%",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
