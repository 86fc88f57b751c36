// Package lifecycle wires one HTTP request's full arc: token resolution,
// multipart boundary extraction, receive-FSM construction and feeding, the
// post-body upload/update handlers, and the guaranteed FSM.Release teardown
// (spec §4.6, §4.7).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/repofs/seafhttp/internal/apperr"
	"github.com/repofs/seafhttp/internal/backend"
	appmetrics "github.com/repofs/seafhttp/internal/metrics"
	"github.com/repofs/seafhttp/internal/multipartx"
	"github.com/repofs/seafhttp/internal/progress"
	"github.com/repofs/seafhttp/internal/recv"
	"github.com/repofs/seafhttp/internal/tracing"
)

// kind distinguishes the upload (new file) and update (existing file)
// request shapes, which share everything except the post-body handler and
// error-redirect path (spec §4.6).
type kind int

const (
	kindUpload kind = iota
	kindUpdate
)

// Handler serves both the /upload/{token} and /update/{token} routes.
type Handler struct {
	Backend    backend.Backend
	Registry   *progress.Registry
	TempDir    string
	ServiceURL string
	Logger     *slog.Logger
	Metrics    *appmetrics.Metrics
	Tracer     *tracing.Tracer
}

// route labels the route-keyed metrics for k; kept distinct from the
// failure-redirect path name since the latter also varies by "error".
func (k kind) route() string {
	if k == kindUpdate {
		return "update"
	}
	return "upload"
}

// Mount registers the handler's routes onto r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/upload/{token}", h.serve(kindUpload))
	r.Post("/update/{token}", h.serve(kindUpdate))
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// extractToken reads the upload token from the URL path, falling back to
// the "token" query parameter for clients that can't set a path segment.
func extractToken(r *http.Request) string {
	if t := chi.URLParam(r, "token"); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) serve(k kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.logger()

		outcome := "error"
		if h.Metrics != nil {
			done := h.Metrics.ObserveRequest(k.route())
			defer func() { done(outcome) }()
		}

		var span trace.Span
		if h.Tracer != nil {
			var ctx context.Context
			ctx, span = h.Tracer.StartRequest(r, k.route())
			r = r.WithContext(ctx)
		}
		var spanErr error
		if span != nil {
			defer func() { tracing.End(span, spanErr) }()
		}

		token := extractToken(r)
		if token == "" {
			spanErr = apperr.BadRequest("missing upload token", nil)
			writeError(w, log, spanErr)
			return
		}

		tok, err := h.Backend.CheckAccessToken(r.Context(), token)
		if err != nil {
			spanErr = apperr.BadRequest("invalid upload token", err)
			writeError(w, log, spanErr)
			return
		}

		boundary, err := multipartx.ExtractBoundary(r.Header.Get("Content-Type"))
		if err != nil {
			spanErr = apperr.BadRequest("bad content-type", err)
			writeError(w, log, spanErr)
			return
		}

		contentLength := r.ContentLength
		if contentLength < 0 {
			if cl, cerr := strconv.ParseInt(r.Header.Get("Content-Length"), 10, 64); cerr == nil {
				contentLength = cl
			}
		}
		if contentLength < 0 {
			spanErr = apperr.BadRequest("missing or invalid Content-Length", nil)
			writeError(w, log, spanErr)
			return
		}

		progressID := r.URL.Query().Get("X-Progress-ID")
		if progressID == "" {
			spanErr = apperr.BadRequest("missing X-Progress-ID", nil)
			writeError(w, log, spanErr)
			return
		}
		log = log.With("route", k.route(), "repo_id", tok.RepoID, "progress_id", progressID)

		f := recv.New(boundary, tok.RepoID, tok.User, h.TempDir, progressID, contentLength, h.Registry, log)
		f.SetMetrics(h.Metrics)
		defer f.Release()

		if err := feedBody(f, r); err != nil {
			spanErr = err
			writeError(w, log, err)
			return
		}

		var result Result
		if k == kindUpload {
			result, err = handleUpload(r.Context(), h.Backend, h.ServiceURL, f)
		} else {
			result, err = handleUpdate(r.Context(), h.Backend, h.ServiceURL, f)
		}
		if err != nil {
			spanErr = err
			log.Warn("upload request failed", "err", err)
			h.redirectError(w, r, k, tok.RepoID, result.ParentDir, result.Filename, toHandlerError(err))
			return
		}

		outcome = "success"
		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
	}
}

// feedBody streams r.Body through the FSM in fixed-size chunks, matching
// the original's read-loop shape rather than handing the whole body to one
// Feed call (spec §4.5's chunk-independence guarantee is what makes this
// safe regardless of chunk size).
func feedBody(f *recv.FSM, r *http.Request) error {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Body.Read(buf)
		if n > 0 {
			if ferr := f.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return apperr.Internal("read request body", err)
		}
	}
}

// toHandlerError normalizes any error produced during body receipt or
// handling into an apperr.Code for the failure redirect. BadRequest/Server
// errors that occur mid-body (connection-level failures in a browser flow)
// are rendered as ERROR_RECV since there is no HTTP status left to report.
func toHandlerError(err error) apperr.Code {
	var he *apperr.HandlerError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.ErrRecv
}

// redirectError renders the failure redirect URL spec §4.6 describes:
// <service_url>/repo/upload_error/<repo_id>?p=<parent_dir>&fn=<filename>&err=<code>
// (or update_error for the update flow). parentDir/filename come from the
// submitted form fields (handleUpload/handleUpdate's Result), not the
// request's own query string, which never carries them.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, k kind, repoID, parentDir, filename string, code apperr.Code) {
	if h.Metrics != nil {
		h.Metrics.HandlerErrorCode.WithLabelValues(strconv.Itoa(int(code))).Inc()
	}

	path := "upload_error"
	if k == kindUpdate {
		path = "update_error"
	}

	u := fmt.Sprintf("%s/repo/%s/%s?p=%s&fn=%s&err=%d",
		h.ServiceURL, path, repoID,
		url.QueryEscape(parentDir), url.QueryEscape(filename), int(code))
	http.Redirect(w, r, u, http.StatusSeeOther)
}

// writeError replies with a transport-level HTTP status for errors
// discovered before a handler could run at all (bad token, bad boundary,
// I/O failure) — situations with no repo_id to build a redirect around.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var badReq *apperr.BadRequestError
	if errors.As(err, &badReq) {
		log.Info("bad request", "err", err)
		http.Error(w, badReq.Error(), http.StatusBadRequest)
		return
	}
	var srvErr *apperr.ServerError
	if errors.As(err, &srvErr) {
		log.Error("server error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log.Error("unclassified error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
