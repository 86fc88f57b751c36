// Package httpd assembles the chi router and HTTP server for seafhttpd:
// the upload/update routes, the progress-polling routes, and the
// operational endpoints (/metrics, /healthz). Server holds config, router,
// and logger, with a blocking ListenAndServe/graceful-shutdown pair.
package httpd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repofs/seafhttp/internal/backend"
	"github.com/repofs/seafhttp/internal/config"
	"github.com/repofs/seafhttp/internal/lifecycle"
	appmetrics "github.com/repofs/seafhttp/internal/metrics"
	"github.com/repofs/seafhttp/internal/progress"
	"github.com/repofs/seafhttp/internal/progressapi"
	"github.com/repofs/seafhttp/internal/tracing"
)

// Server bundles the router and its dependencies, and owns the listening
// *http.Server's lifecycle.
type Server struct {
	cfg    *config.Config
	router chi.Router
	http   *http.Server
	logger *slog.Logger
}

// New builds a Server wired to be, registering all routes.
func New(cfg *config.Config, be backend.Backend, metrics *appmetrics.Metrics, tracer *tracing.Tracer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := progress.NewRegistry()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(slogRequestLogger(logger))
	r.Use(optionsPreflight)

	uploadHandler := &lifecycle.Handler{
		Backend:    be,
		Registry:   reg,
		TempDir:    cfg.TempDir,
		ServiceURL: cfg.ServiceURL,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	}
	uploadHandler.Mount(r)

	progressHandler := progressapi.NewHandler(reg, logger)
	r.Get("/upload_progress", progressHandler.ServeHTTP)
	r.Get("/upload_progress/ws", progressHandler.ServeWS)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz)

	return &Server{
		cfg:    cfg,
		router: r,
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           r,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// optionsPreflight answers CORS preflight requests directly so browser
// clients driving the progress-polling/WebSocket endpoints from a
// different origin than the upload form don't need a separate proxy rule.
func optionsPreflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Progress-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// ListenAndServe blocks serving HTTP until ctx is canceled, then drains
// in-flight requests within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Address)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Router exposes the underlying chi.Router, primarily for tests.
func (s *Server) Router() chi.Router { return s.router }
