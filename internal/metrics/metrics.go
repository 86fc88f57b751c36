// Package metrics wires the service's Prometheus instrumentation: upload
// throughput, in-flight counts, and handler outcomes by error code.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the metrics namespace/labels via a functional-options
// shape.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
}

// Option configures a Config.
type Option func(*Config)

func WithNamespace(namespace string) Option { return func(c *Config) { c.Namespace = namespace } }
func WithSubsystem(subsystem string) Option { return func(c *Config) { c.Subsystem = subsystem } }
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}
func WithBuckets(buckets []float64) Option { return func(c *Config) { c.Buckets = buckets } }
func WithRegistry(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = reg }
}

func defaultConfig() Config {
	return Config{
		Namespace: "seafhttp",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds every collector the service exposes at /metrics.
type Metrics struct {
	UploadsInFlight  prometheus.Gauge
	BytesReceived    prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	FSMErrorsTotal   *prometheus.CounterVec
	HandlerErrorCode *prometheus.CounterVec
}

// New builds a Metrics instance, applying opts over the defaults.
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		UploadsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "uploads_in_flight",
			Help:        "Number of upload/update requests currently being received.",
			ConstLabels: cfg.ConstLabels,
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "bytes_received_total",
			Help:        "Total request body bytes received across all uploads.",
			ConstLabels: cfg.ConstLabels,
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Total upload/update requests by route and outcome.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"route", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "End-to-end request handling duration in seconds.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"route"}),
		FSMErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "fsm_errors_total",
			Help:        "Receive state machine failures by resulting state.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),
		HandlerErrorCode: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "handler_errors_total",
			Help:        "Upload/update handler failures by apperr.Code.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"code"}),
	}
}

// ObserveRequest wraps one request's lifecycle for the duration histogram
// and outcome counter; call the returned func once the request completes.
func (m *Metrics) ObserveRequest(route string) func(outcome string) {
	m.UploadsInFlight.Inc()
	start := time.Now()
	return func(outcome string) {
		m.UploadsInFlight.Dec()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(route, outcome).Inc()
	}
}
