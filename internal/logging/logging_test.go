package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", JSON: true, Stdout: &buf, Fields: []zap.Field{zap.String("app", "test")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("stream completed", zap.Int("fragments", 3))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry["msg"] != "stream completed" || entry["fragments"] != float64(3) || entry["app"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp in %v", entry)
	}
}

func TestNewConsoleLoggerWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "streamledger.log")
	logger, closer, err := New(Options{Level: "debug", Stdout: &buf, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("visible")
	_ = logger.Sync()
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "visible") {
		t.Fatalf("unexpected console output %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read through symlink: %v", err)
	}
	if !strings.Contains(string(data), "visible") {
		t.Fatalf("file missing entry: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{"": zapcore.InfoLevel, "DEBUG": zapcore.DebugLevel, "warning": zapcore.WarnLevel, "error": zapcore.ErrorLevel} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRotatingWriterRollsOverBySizeAndDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	w := &RotatingWriter{BasePath: filepath.Join(dir, "app.log"), MaxBytes: 10, now: func() time.Time { return day }}
	defer w.Close()

	if _, err := w.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := filepath.Base(w.CurrentPath()); got != "app-2026-10-18-2.log" {
		t.Fatalf("expected size rollover, current %s", got)
	}

	day = day.Add(24 * time.Hour)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := filepath.Base(w.CurrentPath()); got != "app-2026-10-19.log" {
		t.Fatalf("expected day rollover, current %s", got)
	}
	for _, name := range []string{"app-2026-10-18.log", "app-2026-10-18-2.log", "app-2026-10-19.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestRotatingWriterUnboundedSize(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "app"), 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()
	first := w.CurrentPath()
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.CurrentPath() != first || !strings.HasSuffix(first, ".log") {
		t.Fatalf("unexpected rollover %s -> %s", first, w.CurrentPath())
	}
}
