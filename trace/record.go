package trace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MateoLopez004/Gobackup/types"
)

// Header describes the polling cycle a trace was recorded from.
type Header struct {
	Type        string `msgpack:"type"`
	Version     string `msgpack:"version"`
	SessionID   string `msgpack:"session_id"`
	Server      string `msgpack:"server"`
	IntervalMs  int64  `msgpack:"interval_ms"`
	MaxAttempts int    `msgpack:"max_attempts"`
	StartedAt   string `msgpack:"started_at"`
}

// Record is one polling tick as observed by the orchestrator.
type Record struct {
	Type    string `msgpack:"type"`
	Seq     int64  `msgpack:"seq"`
	Attempt int    `msgpack:"attempt"`
	Ts      string `msgpack:"ts"`
	// Snapshot is nil for transport errors and timeouts.
	Snapshot       *types.StatusSnapshot `msgpack:"snapshot,omitempty"`
	TransportError string                `msgpack:"transport_error,omitempty"`
	TimedOut       bool                  `msgpack:"timed_out,omitempty"`
	Verdict        types.Verdict         `msgpack:"verdict,omitempty"`
	Path           types.CompletionPath  `msgpack:"path,omitempty"`
	Percent        int                   `msgpack:"percent"`
}

// Recorder writes a trace. Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *FrameEncoder
	c   io.Closer
	seq int64
}

// NewRecorder writes frames to w. If w is an io.Closer, Close closes it.
func NewRecorder(w io.Writer) *Recorder {
	buf := bufio.NewWriter(w)
	r := &Recorder{buf: buf, enc: NewFrameEncoder(buf)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

// Create opens path for writing, truncating it, and returns a Recorder.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewRecorder(f), nil
}

// WriteHeader writes the trace header. It should be the first frame.
func (r *Recorder) WriteHeader(h Header) error {
	h.Type = HeaderType
	if h.Version == "" {
		h.Version = types.Version
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.WriteFrame(&h)
}

// Record appends a tick. Seq and Ts are assigned when unset.
func (r *Recorder) Record(rec Record) error {
	rec.Type = TickType
	if rec.Ts == "" {
		rec.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.Seq = r.seq
	return r.enc.WriteFrame(&rec)
}

// Close flushes buffered frames and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.buf.Flush()
	if r.c != nil {
		err = errors.Join(err, r.c.Close())
	}
	return err
}

// Trace is a decoded trace file.
type Trace struct {
	Header  *Header
	Records []Record
}

// Read decodes a whole trace. Any frame error aborts decoding.
func Read(r io.Reader) (*Trace, error) {
	dec := NewFrameDecoder(bufio.NewReader(r))
	var t Trace
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			return &t, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := DecodeFrame(payload)
		if err != nil {
			return nil, err
		}
		switch f := v.(type) {
		case *Header:
			if t.Header != nil || len(t.Records) > 0 {
				return nil, &FrameError{Kind: FrameErrorDecode, Msg: "header is not the first frame"}
			}
			t.Header = f
		case *Record:
			t.Records = append(t.Records, *f)
		}
	}
}

// Open reads the trace file at path.
func Open(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
