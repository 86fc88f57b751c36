// Package tempsink owns the on-disk temp file a single in-flight upload
// streams its payload into: creation, writes, stat, and guaranteed removal.
package tempsink

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// DefaultDir is the conventional scratch directory for temp files (the same
// path as config.DefaultTempDir). Open does not fall back to it; callers
// always pass the directory explicitly.
const DefaultDir = "/tmp/seafhttp"

// EnsureDir creates dir (mode 0777, matching upstream's permissive scratch
// directory) if it doesn't already exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("tempsink: ensure dir %s: %w", dir, err)
	}
	return nil
}

// Sink owns one temp file's file descriptor for the duration of an upload.
// It is not safe for concurrent use by multiple goroutines; each in-flight
// request owns exactly one Sink.
type Sink struct {
	f    *os.File
	path string

	closeOnce sync.Once
	logger    *slog.Logger
}

// Open creates a uniquely named file under dir, named "<prefix>XXXXXX" with
// a random suffix, mode 0600. prefix is typically the client's original
// filename so the temp file is easy to recognize on disk during debugging.
func Open(dir, prefix string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("tempsink: open: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("tempsink: chmod: %w", err)
	}

	return &Sink{f: f, path: f.Name(), logger: logger}, nil
}

// WriteAll writes every byte of p, looping over short writes. It fails only
// on an unrecoverable I/O error.
func (s *Sink) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := s.f.Write(p)
		if err != nil {
			return fmt.Errorf("tempsink: write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Path returns the absolute path of the temp file.
func (s *Sink) Path() string {
	return s.path
}

// Size returns the temp file's current on-disk size via stat.
func (s *Sink) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("tempsink: stat: %w", err)
	}
	return info.Size(), nil
}

// Close closes the file descriptor and unlinks the path. Both steps are
// attempted unconditionally; errors are logged, never propagated. Close is
// idempotent and safe to call more than once (e.g. once explicitly on
// success, once again via a deferred cleanup).
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		if err := s.f.Close(); err != nil {
			s.logger.Warn("tempsink: close failed", "path", s.path, "error", err)
		}
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("tempsink: unlink failed", "path", s.path, "error", err)
		}
	})
}
