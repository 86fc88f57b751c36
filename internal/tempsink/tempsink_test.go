package tempsink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWriteSizeClose(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "a.txt", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.WriteAll([]byte("hello")); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := s.WriteAll([]byte(" world")); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	size, err := s.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len("hello world")) {
		t.Fatalf("Size() = %d, want %d", size, len("hello world"))
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat temp file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
	if filepath.Dir(s.Path()) != dir {
		t.Fatalf("temp file not under %s: %s", dir, s.Path())
	}

	path := s.Path()
	s.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err = %v", err)
	}

	// Close must be idempotent.
	s.Close()
}

func TestOpen_UniqueNames(t *testing.T) {
	dir := t.TempDir()

	a, err := Open(dir, "dup.txt", nil)
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	defer a.Close()

	b, err := Open(dir, "dup.txt", nil)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	defer b.Close()

	if a.Path() == b.Path() {
		t.Fatalf("expected distinct paths, both got %s", a.Path())
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "scratch")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir (second call): %v", err)
	}
}
