package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const megabyte = 1 << 20

// RotatingWriter appends to a log file and, once a write would push it past the
// size limit, shifts it to path.1 (path.1 to path.2 and so on) keeping at most
// maxBackups old files.
type RotatingWriter struct {
	path       string
	limit      int64
	maxBackups int

	mu      sync.Mutex
	file    *os.File
	written int64
}

func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	w := &RotatingWriter{
		path:       path,
		limit:      int64(maxSizeMB) * megabyte,
		maxBackups: max(maxBackups, 0),
	}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(os.O_APPEND); err != nil {
			return 0, err
		}
	}
	if w.written > 0 && w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

func (w *RotatingWriter) open(mode int) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	w.file = file
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	if w.maxBackups == 0 {
		return w.open(os.O_TRUNC)
	}
	_ = os.Remove(w.backup(w.maxBackups))
	for i := w.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(w.backup(i), w.backup(i+1))
	}
	if err := os.Rename(w.path, w.backup(1)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return w.open(os.O_TRUNC)
}

func (w *RotatingWriter) backup(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}
