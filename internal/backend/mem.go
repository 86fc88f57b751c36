package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemBackend is an in-process, filesystem-backed Backend implementation.
// It is used by tests and as a zero-configuration default when no S3
// endpoint is configured: each repo is a subdirectory of Root.
type MemBackend struct {
	Root string

	mu      sync.Mutex
	tokens  map[string]Token
	quotaOK map[string]bool // repoID -> has quota; absent means ok
}

// NewMemBackend creates a MemBackend rooted at root, creating it if needed.
func NewMemBackend(root string) (*MemBackend, error) {
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, err
	}
	return &MemBackend{
		Root:    root,
		tokens:  make(map[string]Token),
		quotaOK: make(map[string]bool),
	}, nil
}

// RegisterToken makes token resolve to tok. Test/admin helper; a real
// deployment would resolve tokens against an auth service instead.
func (m *MemBackend) RegisterToken(token string, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = tok
}

// SetQuotaExceeded marks repoID as over quota (or clears the flag).
func (m *MemBackend) SetQuotaExceeded(repoID string, exceeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaOK[repoID] = !exceeded
}

func (m *MemBackend) CheckAccessToken(ctx context.Context, token string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[token]
	if !ok {
		return Token{}, errors.New("unknown token")
	}
	return tok, nil
}

func (m *MemBackend) CheckQuota(ctx context.Context, repoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok, seen := m.quotaOK[repoID]; seen && !ok {
		return errors.New("quota exceeded")
	}
	return nil
}

func (m *MemBackend) repoDir(repoID, parentDir string) string {
	return filepath.Join(m.Root, repoID, filepath.FromSlash(parentDir))
}

func (m *MemBackend) ListDir(ctx context.Context, repoID, parentDir string) ([]DirEntry, error) {
	dir := m.repoDir(repoID, parentDir)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, DirEntry{Name: info.Name(), IsDir: info.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemBackend) ingest(repoID, srcPath, parentDir, name string) error {
	dir := m.repoDir(repoID, parentDir)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return nil
}

func (m *MemBackend) PostFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error {
	dir := m.repoDir(repoID, parentDir)
	if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		return errors.New(MsgFileExists)
	}
	return m.ingest(repoID, srcPath, parentDir, name)
}

func (m *MemBackend) PutFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error {
	dir := m.repoDir(repoID, parentDir)
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return errors.New(MsgFileDoesNotExist)
	}
	return m.ingest(repoID, srcPath, parentDir, name)
}
