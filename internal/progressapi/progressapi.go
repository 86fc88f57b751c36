// Package progressapi serves the progress-polling surface clients use to
// drive an upload progress bar: a JSONP GET endpoint, plus a supplemental
// WebSocket push variant for clients that want server-initiated updates
// instead of polling.
package progressapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/repofs/seafhttp/internal/progress"
)

// Handler serves GET /upload_progress and /upload_progress/ws.
type Handler struct {
	Registry *progress.Registry
	Logger   *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler builds a Handler, initializing the WebSocket upgrader with
// modest buffer sizes and a permissive origin policy suitable for a
// same-origin-or-CORS-fronted progress widget.
func NewHandler(reg *progress.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Registry: reg,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements the JSONP polling contract (spec §4.8): requires
// X-Progress-ID and callback query parameters, and replies with
// "<callback>({\"uploaded\": <u>, \"length\": <s>});" once the entry is
// found, or 400 if the progress id is unknown (upload not started, already
// finished, or typo'd).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	progressID := r.URL.Query().Get("X-Progress-ID")
	callback := r.URL.Query().Get("callback")
	if progressID == "" || callback == "" {
		http.Error(w, "missing X-Progress-ID or callback parameter", http.StatusBadRequest)
		return
	}

	entry := h.Registry.Lookup(progressID)
	if entry == nil {
		http.Error(w, "unknown progress id", http.StatusBadRequest)
		return
	}

	snap := entry.Snapshot()
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	fmt.Fprintf(w, "%s({\"uploaded\": %d, \"length\": %d});", callback, snap.Uploaded, snap.Size)
}

// pollInterval is how often ServeWS pushes a fresh snapshot to the client.
const pollInterval = 250 * time.Millisecond

// ServeWS upgrades the connection and pushes JSON progress snapshots every
// pollInterval until the entry disappears (upload finished or aborted) or
// the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	progressID := r.URL.Query().Get("X-Progress-ID")
	if progressID == "" {
		http.Error(w, "missing X-Progress-ID parameter", http.StatusBadRequest)
		return
	}

	entry := h.Registry.Lookup(progressID)
	if entry == nil {
		http.Error(w, "unknown progress id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("progress websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		entry := h.Registry.Lookup(progressID)
		if entry == nil {
			conn.WriteJSON(map[string]any{"done": true})
			return
		}
		snap := entry.Snapshot()
		if err := conn.WriteJSON(map[string]any{"uploaded": snap.Uploaded, "length": snap.Size}); err != nil {
			return
		}
	}
}
