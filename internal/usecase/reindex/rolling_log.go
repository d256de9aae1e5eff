package reindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultLogLimit is how many trailing bytes of job output are retained.
const DefaultLogLimit = 200000

// RollingLog keeps the trailing limit bytes of everything appended to it and
// mirrors them to a file when a path is set.
type RollingLog struct {
	mu    sync.Mutex
	path  string
	limit int
	buf   []byte
}

// NewRollingLog opens a log backed by path ("" keeps it in memory). Existing
// file contents are carried over.
func NewRollingLog(path string, limit int) (*RollingLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	l := &RollingLog{path: path, limit: limit}
	if path == "" {
		return l, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read log: %w", err)
	default:
		l.buf = tail(data, limit)
	}
	return l, nil
}

// Append adds text and drops the oldest bytes past the limit.
func (l *RollingLog) Append(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = tail(append(l.buf, text...), l.limit)
	if l.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, l.buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// String returns the retained text.
func (l *RollingLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.buf)
}

// Len is the retained size in bytes.
func (l *RollingLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

func tail(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	out := make([]byte, limit)
	copy(out, b[len(b)-limit:])
	return out
}
