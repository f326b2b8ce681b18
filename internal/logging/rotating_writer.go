package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter writes to files that rotate each UTC day and, when MaxBytes
// is positive, whenever the next write would exceed it.
//
// A base path of logs/streamledger.log produces logs/streamledger-2026-10-18.log,
// then logs/streamledger-2026-10-18-2.log after a size rollover. The base path
// itself is kept as a symlink to the active file.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64

	now      func() time.Time
	mu       sync.Mutex
	curDate  string
	curIndex int
	file     *os.File
	size     int64
}

// NewRotatingWriter opens the file for today.
func NewRotatingWriter(basePath string, maxBytes int64) (*RotatingWriter, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("logging: log file path required")
	}
	rw := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, now: time.Now}
	if err := rw.rotateIfNeeded(0); err != nil {
		return nil, err
	}
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Sync flushes the active file. It lets the writer back a zapcore.WriteSyncer.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// CurrentPath returns the file currently written to.
func (w *RotatingWriter) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *RotatingWriter) rotateIfNeeded(incoming int64) error {
	today := w.now().UTC().Format("2006-01-02")
	if w.file == nil || w.curDate != today {
		w.curDate = today
		w.curIndex = 1
		return w.openCurrent()
	}
	if w.MaxBytes > 0 && w.size > 0 && w.size+incoming > w.MaxBytes {
		w.curIndex++
		return w.openCurrent()
	}
	return nil
}

func (w *RotatingWriter) openCurrent() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	filename := fmt.Sprintf("%s-%s%s", base, w.curDate, ext)
	if w.curIndex > 1 {
		filename = fmt.Sprintf("%s-%s-%d%s", base, w.curDate, w.curIndex, ext)
	}
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file = f
	w.size = size
	w.linkCurrent(filename)
	return nil
}

// linkCurrent points BasePath at the active file. Failure is ignored; the
// dated files are authoritative.
func (w *RotatingWriter) linkCurrent(filename string) {
	if info, err := os.Lstat(w.BasePath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return
		}
		if dest, err := os.Readlink(w.BasePath); err == nil && dest == filename {
			return
		}
		_ = os.Remove(w.BasePath)
	}
	_ = os.Symlink(filename, w.BasePath)
}
