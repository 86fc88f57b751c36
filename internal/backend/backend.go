// Package backend defines the RPC surface treated as an external
// collaborator: access-token resolution, quota checks, and the two
// file-ingest calls (post_file for new objects, put_file for updates), plus
// whatever directory listing gen_unique_filename needs. Everything in this
// package is a dependency the upload/update handlers call through, never an
// implementation detail of the receive state machine.
package backend

import "context"

// Token identifies a resolved upload session: the repo it targets and the
// user performing the upload, both immutable once resolved.
type Token struct {
	RepoID string
	User   string
}

// DirEntry is one entry of a repository directory listing, as needed by
// gen_unique_filename's collision search.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Backend is the RPC surface consumed by the request lifecycle and the
// upload/update handlers (spec §4.6, §6). Implementations talk to whatever
// object store or repository service actually backs the content-addressed
// file repository; this package only names the interface.
type Backend interface {
	// CheckAccessToken resolves an opaque upload token to a repo/user pair.
	CheckAccessToken(ctx context.Context, token string) (Token, error)

	// CheckQuota reports whether repoID currently has room for more data.
	CheckQuota(ctx context.Context, repoID string) error

	// ListDir lists the entries directly under parentDir in repoID, used
	// by gen_unique_filename's collision search.
	ListDir(ctx context.Context, repoID, parentDir string) ([]DirEntry, error)

	// PostFile ingests srcPath into repoID at parentDir/name as a brand new
	// object, attributed to user.
	PostFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error

	// PutFile ingests srcPath into repoID at parentDir/name as an update to
	// an existing object, attributed to user.
	PutFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error
}

// Well-known backend error strings the handlers pattern-match on to choose
// an apperr.Code (spec §4.6). Implementations should return errors whose
// Error() is exactly one of these when the corresponding condition holds;
// anything else maps to ERROR_INTERNAL.
const (
	MsgInvalidFilename  = "Invalid filename"
	MsgFileExists       = "file already exists"
	MsgFileDoesNotExist = "file does not exist"
)
