// Package tracing wraps each request lifecycle in an OpenTelemetry span,
// using the same functional-options configuration shape as the metrics
// package.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "seafhttp"

// Config configures the tracer name used to derive spans.
type Config struct {
	TracerName string
	tracer     trace.Tracer
}

// Option configures a Config.
type Option func(*Config)

// WithTracerName overrides the tracer name (default "seafhttp").
func WithTracerName(name string) Option {
	return func(c *Config) { c.TracerName = name }
}

func defaultConfig() Config {
	return Config{TracerName: defaultTracerName}
}

// Tracer wraps a resolved trace.Tracer for request-lifecycle spans.
type Tracer struct {
	tracer trace.Tracer
}

// New resolves a Tracer against the global OpenTelemetry provider.
// cmd/seafhttpd installs no provider of its own, so spans go to whatever
// global provider is set (the no-op default if none is).
func New(opts ...Option) *Tracer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tracer{tracer: otel.Tracer(cfg.TracerName)}
}

// StartRequest opens a server-kind span for one upload/update request,
// tagging it with the route and HTTP method. The caller must End the returned
// span once the request completes, recording err if non-nil.
func (t *Tracer) StartRequest(r *http.Request, route string) (context.Context, trace.Span) {
	return t.tracer.Start(r.Context(), route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("seafhttp.route", route),
			attribute.String("http.method", r.Method),
		),
	)
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
