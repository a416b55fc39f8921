package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/pathcanon/pathcanon/internal/realpath"
)

func TestTraceLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTraceLogger(&buf)

	trace := Trace{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		RequestID: "req-1",
		Op:        OpRealpath,
		Grammar:   "posix",
		Inputs:    []string{"/a"},
		Result:    "/b",
		Stats:     &realpath.Stats{Lstats: 2, Splices: 1},
		Splices: []realpath.Link{{
			Path:   "/a",
			Target: strings.Repeat("x", 1000),
		}},
	}

	if err := logger.Write(trace); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var parsed Trace
	if err := json.Unmarshal([]byte(lines[0]), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(parsed.Splices) != 1 {
		t.Fatalf("expected 1 splice, got %d", len(parsed.Splices))
	}
	if len(parsed.Splices[0].Target) != maxTarget {
		t.Fatalf("expected target length %d, got %d", maxTarget, len(parsed.Splices[0].Target))
	}
	if len(trace.Splices[0].Target) != 1000 {
		t.Fatalf("caller's trace was modified")
	}
	if parsed.Stats == nil || parsed.Stats.Splices != 1 {
		t.Fatalf("stats not round-tripped: %+v", parsed.Stats)
	}
	if parsed.Failed() {
		t.Fatalf("trace without code reported as failed")
	}
}

func TestTraceLoggerConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTraceLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Write(Trace{Op: OpResolve, Inputs: []string{"a", "b"}, Result: "/a/b"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("interleaved line %q", line)
		}
	}
}

func TestTraceLoggerTruncatesOnRuneBoundary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTraceLogger(&buf)

	// "é" is two bytes, so byte maxTarget falls inside a rune.
	target := "x" + strings.Repeat("é", maxTarget)
	err := logger.Write(Trace{
		Op:      OpRealpath,
		Splices: []realpath.Link{{Path: "/a", Target: target}},
	})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed Trace
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	got := parsed.Splices[0].Target
	if !utf8.ValidString(got) || strings.ContainsRune(got, utf8.RuneError) {
		t.Fatalf("target split a rune: %q", got)
	}
	if len(got) != maxTarget-1 || !strings.HasPrefix(target, got) {
		t.Fatalf("expected %d-byte prefix, got %d bytes", maxTarget-1, len(got))
	}
}

func TestNilTraceLogger(t *testing.T) {
	var logger *TraceLogger
	if err := logger.Write(Trace{Op: OpResolve}); err != nil {
		t.Fatalf("nil logger Write error: %v", err)
	}
}

func TestOpenTraceLogCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traces.jsonl")
	logger, closeFn, err := OpenTraceLog(path)
	if err != nil {
		t.Fatalf("OpenTraceLog error: %v", err)
	}
	if err := logger.Write(Trace{Op: OpResolve}); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close error: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}
	logger.WithField("path", "/a").Debug("lstat")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if entry["msg"] != "lstat" || entry["path"] != "/a" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	logger, err = NewLogger("info", FormatText, &buf)
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	logger.Info("hello")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("colour codes written to a non-terminal: %q", buf.String())
	}

	if _, err := NewLogger("loud", FormatText, &buf); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Fatalf("expected format error")
	}
}
