package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/repofs/seafhttp/internal/apperr"
	"github.com/repofs/seafhttp/internal/backend"
	"github.com/repofs/seafhttp/internal/recv"
)

// MaxUploadFileSize is the maximum accepted size of a received file, spec
// §4.6/§6.
const MaxUploadFileSize = 100 << 20 // 100 MiB

// maxUniqueNameAttempts bounds gen_unique_filename's collision search.
// Preserved verbatim from the original: the loop exits once i > 16 whether
// or not the 16th candidate itself collides (spec §9 Open Question).
const maxUniqueNameAttempts = 16

// Result is what an upload/update handler produces: ParentDir and Filename
// are populated as soon as they're known (even on a later error) so the
// caller can build the failure redirect's p=/fn= query params the way
// the original's redirect_to_upload_error/redirect_to_update_error do;
// RedirectURL is only set on success.
type Result struct {
	RedirectURL string
	ParentDir   string
	Filename    string
}

// handleUpload implements spec §4.6's upload handler: new objects, with
// name de-duplication against the target directory's current listing.
func handleUpload(ctx context.Context, be backend.Backend, serviceURL string, f *recv.FSM) (Result, error) {
	parentDir, ok := f.FormValue("parent_dir")
	if !ok || parentDir == "" {
		return Result{}, apperr.BadRequest("missing parent_dir field", nil)
	}

	originalName := path.Base(f.FileName())
	res := Result{ParentDir: parentDir, Filename: originalName}

	if err := checkReceivedFile(f); err != nil {
		return res, err
	}

	if err := be.CheckQuota(ctx, f.RepoID); err != nil {
		return res, apperr.Handler(apperr.ErrQuota, err)
	}

	uniqueName, err := genUniqueFilename(ctx, be, f.RepoID, parentDir, originalName)
	if err != nil {
		return res, apperr.Handler(apperr.ErrInternal, err)
	}

	if err := be.PostFile(ctx, f.RepoID, f.TempPath(), parentDir, uniqueName, f.User); err != nil {
		return res, mapPostFileError(err)
	}

	res.RedirectURL = fmt.Sprintf("%s/repo/%s?p=%s", serviceURL, f.RepoID, url.QueryEscape(parentDir))
	return res, nil
}

// handleUpdate implements spec §4.6's update handler.
func handleUpdate(ctx context.Context, be backend.Backend, serviceURL string, f *recv.FSM) (Result, error) {
	targetFile, ok := f.FormValue("target_file")
	if !ok || targetFile == "" {
		return Result{}, apperr.BadRequest("missing target_file field", nil)
	}

	parentDir := path.Dir(targetFile)
	filename := path.Base(targetFile)
	res := Result{ParentDir: parentDir, Filename: filename}

	if err := checkReceivedFile(f); err != nil {
		return res, err
	}

	if err := be.CheckQuota(ctx, f.RepoID); err != nil {
		return res, apperr.Handler(apperr.ErrQuota, err)
	}

	if err := be.PutFile(ctx, f.RepoID, f.TempPath(), parentDir, filename, f.User); err != nil {
		return res, mapPutFileError(err)
	}

	res.RedirectURL = fmt.Sprintf("%s/repo/%s?p=%s", serviceURL, f.RepoID, url.QueryEscape(parentDir))
	return res, nil
}

// checkReceivedFile enforces spec §4.6(a) and the empty-upload open
// question (§9): a missing or zero-sized file part, or a body that ended
// before its declared Content-Length, is ERROR_RECV; an oversize file part
// is ERROR_SIZE. A file part whose closing boundary never arrived is not
// rejected here.
func checkReceivedFile(f *recv.FSM) error {
	if !f.HasFile() {
		return apperr.Handler(apperr.ErrRecv, fmt.Errorf("no file part received"))
	}
	size, err := f.FileSize()
	if err != nil {
		return apperr.Handler(apperr.ErrRecv, err)
	}
	if size == 0 {
		return apperr.Handler(apperr.ErrRecv, fmt.Errorf("empty file part"))
	}
	if f.BytesRemaining() > 0 {
		return apperr.Handler(apperr.ErrRecv, fmt.Errorf("body ended before declared content-length"))
	}
	if size > MaxUploadFileSize {
		return apperr.Handler(apperr.ErrSize, fmt.Errorf("file size %d exceeds limit %d", size, MaxUploadFileSize))
	}
	return nil
}

// genUniqueFilename starts with name and appends " (1)", " (2)", ... up to
// 16 attempts, preserving the extension, stopping at the first candidate
// that doesn't collide with parentDir's current listing. Preserves the
// original's exit-at-i>16 behavior (possibly returning a colliding name).
func genUniqueFilename(ctx context.Context, be backend.Backend, repoID, parentDir, name string) (string, error) {
	entries, err := be.ListDir(ctx, repoID, parentDir)
	if err != nil {
		return "", err
	}
	existing := make(map[string]bool, len(entries))
	for _, e := range entries {
		existing[e.Name] = true
	}

	if !existing[name] {
		return name, nil
	}

	base, ext := splitExt(name)
	candidate := name
	for i := 1; i <= maxUniqueNameAttempts; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		if !existing[candidate] {
			return candidate, nil
		}
	}
	return candidate, nil
}

// splitExt splits name into (base, ext) at the last '.', with ext including
// the dot. If there is no '.', or the only candidate is a leading '.' (as
// in ".profile"), ext is empty.
func splitExt(name string) (base, ext string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

func mapPostFileError(err error) error {
	switch err.Error() {
	case backend.MsgInvalidFilename:
		return apperr.Handler(apperr.ErrFilename, err)
	case backend.MsgFileExists:
		return apperr.Handler(apperr.ErrExists, err)
	default:
		return apperr.Handler(apperr.ErrInternal, err)
	}
}

func mapPutFileError(err error) error {
	switch err.Error() {
	case backend.MsgFileDoesNotExist:
		return apperr.Handler(apperr.ErrNotExist, err)
	default:
		return apperr.Handler(apperr.ErrInternal, err)
	}
}
