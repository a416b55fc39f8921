package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pathcanon/pathcanon/internal/realpath"
)

const maxTarget = 256

const (
	OpResolve  = "resolve"
	OpRealpath = "realpath"
)

// Trace is written as a single JSON object per operation.
type Trace struct {
	Timestamp  time.Time       `json:"ts"`
	RequestID  string          `json:"request_id,omitempty"`
	Op         string          `json:"op"`
	Grammar    string          `json:"grammar"`
	Inputs     []string        `json:"inputs"`
	Result     string          `json:"result,omitempty"`
	DeviceLen  int             `json:"device_len,omitempty"`
	Code       string          `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stats      *realpath.Stats `json:"stats,omitempty"`
	Splices    []realpath.Link `json:"splices,omitempty"`
	DurationUS int64           `json:"duration_us"`
}

func (t Trace) Failed() bool {
	return t.Code != ""
}

type TraceLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTraceLogger(w io.Writer) *TraceLogger {
	return &TraceLogger{w: w}
}

func OpenTraceLog(path string) (*TraceLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewTraceLogger(file), file.Close, nil
}

// Write appends one trace line. A nil logger discards the trace.
func (l *TraceLogger) Write(trace Trace) error {
	if l == nil {
		return nil
	}
	trace.Splices = truncateTargets(trace.Splices)

	data, err := json.Marshal(trace)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func truncateTargets(links []realpath.Link) []realpath.Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]realpath.Link, len(links))
	for i, link := range links {
		out[i] = link
		if len(link.Target) > maxTarget {
			out[i].Target = cutTarget(link.Target)
		}
	}
	return out
}

// cutTarget shortens s to at most maxTarget bytes without splitting a rune.
func cutTarget(s string) string {
	n := maxTarget
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
