package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repofs/seafhttp/internal/backend"
	"github.com/repofs/seafhttp/internal/progress"
	"github.com/repofs/seafhttp/internal/recv"
)

func newUploadFSM(t *testing.T, parentDir, fileContent string) *recv.FSM {
	t.Helper()
	dir := t.TempDir()
	reg := progress.NewRegistry()
	body := "--X\r\n" +
		`Content-Disposition: form-data; name="parent_dir"` + "\r\n\r\n" +
		parentDir + "\r\n" +
		"--X\r\n" +
		`Content-Disposition: form-data; name="file"; filename="report.txt"` + "\r\n\r\n" +
		fileContent + "\r\n--X--\r\n"

	f := recv.New("X", "repo1", "alice", dir, "p1", int64(len(body)), reg, nil)
	t.Cleanup(f.Release)
	if err := f.Feed([]byte(body)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	return f
}

func TestHandleUpload_Success(t *testing.T) {
	root := t.TempDir()
	be, err := backend.NewMemBackend(root)
	if err != nil {
		t.Fatalf("NewMemBackend: %v", err)
	}

	f := newUploadFSM(t, "/docs", "hello world")
	res, err := handleUpload(context.Background(), be, "https://seaf.example", f)
	if err != nil {
		t.Fatalf("handleUpload: %v", err)
	}
	if !strings.Contains(res.RedirectURL, "/repo/repo1?p=%2Fdocs") {
		t.Fatalf("redirect URL = %q", res.RedirectURL)
	}

	got, err := os.ReadFile(filepath.Join(root, "repo1", "docs", "report.txt"))
	if err != nil {
		t.Fatalf("read ingested file: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content = %q", got)
	}
}

func TestHandleUpload_NameCollisionGetsSuffixed(t *testing.T) {
	root := t.TempDir()
	be, err := backend.NewMemBackend(root)
	if err != nil {
		t.Fatalf("NewMemBackend: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "repo1", "docs"), 0o770); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "repo1", "docs", "report.txt"), []byte("old"), 0o660); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	f := newUploadFSM(t, "/docs", "new content")
	res, err := handleUpload(context.Background(), be, "https://seaf.example", f)
	if err != nil {
		t.Fatalf("handleUpload: %v", err)
	}
	if res.RedirectURL == "" {
		t.Fatalf("expected a redirect URL")
	}

	got, err := os.ReadFile(filepath.Join(root, "repo1", "docs", "report (1).txt"))
	if err != nil {
		t.Fatalf("expected de-duplicated filename, read: %v", err)
	}
	if string(got) != "new content" {
		t.Fatalf("content = %q", got)
	}

	// The original file must be untouched.
	orig, err := os.ReadFile(filepath.Join(root, "repo1", "docs", "report.txt"))
	if err != nil || string(orig) != "old" {
		t.Fatalf("original file mutated: %q, err=%v", orig, err)
	}
}

func TestHandleUpload_MissingParentDir(t *testing.T) {
	root := t.TempDir()
	be, _ := backend.NewMemBackend(root)

	dir := t.TempDir()
	reg := progress.NewRegistry()
	body := "--X\r\n" +
		`Content-Disposition: form-data; name="file"; filename="a.txt"` + "\r\n\r\n" +
		"x\r\n--X--\r\n"
	f := recv.New("X", "repo1", "alice", dir, "p1", int64(len(body)), reg, nil)
	defer f.Release()
	if err := f.Feed([]byte(body)); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if _, err := handleUpload(context.Background(), be, "https://seaf.example", f); err == nil {
		t.Fatalf("expected an error for missing parent_dir")
	}
}

func TestHandleUpdate_Success(t *testing.T) {
	root := t.TempDir()
	be, err := backend.NewMemBackend(root)
	if err != nil {
		t.Fatalf("NewMemBackend: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "repo1", "docs"), 0o770); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "repo1", "docs", "report.txt"), []byte("old"), 0o660); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	dir := t.TempDir()
	reg := progress.NewRegistry()
	body := "--X\r\n" +
		`Content-Disposition: form-data; name="target_file"` + "\r\n\r\n" +
		"/docs/report.txt\r\n" +
		"--X\r\n" +
		`Content-Disposition: form-data; name="file"; filename="report.txt"` + "\r\n\r\n" +
		"updated\r\n--X--\r\n"
	f := recv.New("X", "repo1", "alice", dir, "p1", int64(len(body)), reg, nil)
	defer f.Release()
	if err := f.Feed([]byte(body)); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if _, err := handleUpdate(context.Background(), be, "https://seaf.example", f); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "repo1", "docs", "report.txt"))
	if err != nil || string(got) != "updated" {
		t.Fatalf("content = %q, err=%v", got, err)
	}
}

func TestHandleUpdate_TargetDoesNotExist(t *testing.T) {
	root := t.TempDir()
	be, err := backend.NewMemBackend(root)
	if err != nil {
		t.Fatalf("NewMemBackend: %v", err)
	}

	dir := t.TempDir()
	reg := progress.NewRegistry()
	body := "--X\r\n" +
		`Content-Disposition: form-data; name="target_file"` + "\r\n\r\n" +
		"/docs/missing.txt\r\n" +
		"--X\r\n" +
		`Content-Disposition: form-data; name="file"; filename="missing.txt"` + "\r\n\r\n" +
		"data\r\n--X--\r\n"
	f := recv.New("X", "repo1", "alice", dir, "p1", int64(len(body)), reg, nil)
	defer f.Release()
	if err := f.Feed([]byte(body)); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if _, err := handleUpdate(context.Background(), be, "https://seaf.example", f); err == nil {
		t.Fatalf("expected an error for a non-existent target_file")
	}
}

func TestGenUniqueFilename_NoExtension(t *testing.T) {
	root := t.TempDir()
	be, err := backend.NewMemBackend(root)
	if err != nil {
		t.Fatalf("NewMemBackend: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "repo1", "docs"), 0o770); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "repo1", "docs", "README"), []byte("x"), 0o660); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	name, err := genUniqueFilename(context.Background(), be, "repo1", "/docs", "README")
	if err != nil {
		t.Fatalf("genUniqueFilename: %v", err)
	}
	if name != "README (1)" {
		t.Fatalf("name = %q, want %q", name, "README (1)")
	}
}
