package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/routeproxy/internal/route"
)

const namespace = "routeproxy"

// Metrics holds all Prometheus metrics. Each instance owns its registry, so
// tests and embedded servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Rewrite metrics
	RewritesTotal   *prometheus.CounterVec
	RewriteDuration *prometheus.HistogramVec
	RewriteBytes    *prometheus.HistogramVec

	// Reference metrics
	ReferencesRouted  *prometheus.CounterVec
	ReferencesSkipped *prometheus.CounterVec

	// Route lookups through /v1/route and /v1/resolve
	RouteLookups *prometheus.CounterVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the health endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	Rewrites      int64   `json:"rewrites"`
	RewriteErrors int64   `json:"rewrite_errors"`
	Routed        int64   `json:"references_routed"`
	Skipped       int64   `json:"references_skipped"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

var sizeBuckets = []float64{100, 1000, 10000, 100000, 1000000, 10000000}

// NewMetrics creates a metrics collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method", "path"},
		),

		RewritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewrites_total",
				Help:      "Total number of payload rewrites",
			},
			[]string{"type", "status"},
		),
		RewriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rewrite_duration_seconds",
				Help:      "Payload rewrite duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"type"},
		),
		RewriteBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rewrite_bytes",
				Help:      "Payload size before and after rewriting",
				Buckets:   sizeBuckets,
			},
			[]string{"type", "direction"},
		),

		ReferencesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "references_routed_total",
				Help:      "References replaced by a route",
			},
			[]string{"type"},
		),
		ReferencesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "references_skipped_total",
				Help:      "References left untouched",
			},
			[]string{"type", "reason"},
		),

		RouteLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_lookups_total",
				Help:      "Route encode and decode requests",
			},
			[]string{"op", "status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRewrite records one payload rewrite.
func (m *Metrics) RecordRewrite(t route.ResourceType, status string, duration time.Duration, in, out int) {
	m.RewritesTotal.WithLabelValues(string(t), status).Inc()
	m.RewriteDuration.WithLabelValues(string(t)).Observe(duration.Seconds())
	m.RewriteBytes.WithLabelValues(string(t), "in").Observe(float64(in))
	if status == StatusOK {
		m.RewriteBytes.WithLabelValues(string(t), "out").Observe(float64(out))
	}

	m.mu.Lock()
	m.snapshot.Rewrites++
	if status != StatusOK {
		m.snapshot.RewriteErrors++
	}
	m.mu.Unlock()
}

// RecordRouteLookup records a route encode or decode request.
func (m *Metrics) RecordRouteLookup(op, status string) {
	m.RouteLookups.WithLabelValues(op, status).Inc()
}

// ReferenceRouted implements rewrite.Observer.
func (m *Metrics) ReferenceRouted(t route.ResourceType) {
	m.ReferencesRouted.WithLabelValues(string(t)).Inc()
	m.mu.Lock()
	m.snapshot.Routed++
	m.mu.Unlock()
}

// ReferenceSkipped implements rewrite.Observer.
func (m *Metrics) ReferenceSkipped(t route.ResourceType, reason string) {
	m.ReferencesSkipped.WithLabelValues(string(t), reason).Inc()
	m.mu.Lock()
	m.snapshot.Skipped++
	m.mu.Unlock()
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
