// Package observability exposes Prometheus metrics for the API server and the ingest job.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tao_dashboard"

// Metrics holds every collector. Each instance owns its registry so tests do
// not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	Upstream      *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
	IngestRuns    *prometheus.CounterVec
	IngestSeconds *prometheus.HistogramVec
	Signals       *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by resource and result",
		}, []string{"resource", "result"}),
		Upstream: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream metrics API calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the named breaker is open, 0.5 half-open, 0 closed",
		}, []string{"name"}),
		IngestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingest job runs by job and result",
		}, []string{"job", "ok"}),
		IngestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Ingest job duration",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"job"}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_emitted_total",
			Help:      "Anomaly signals returned by severity",
		}, []string{"severity"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
// Compression is left to the HTTP middleware.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// CacheResult records a cache hit or miss
func (m *Metrics) CacheResult(resource string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(resource, result).Inc()
}

// UpstreamResult records an upstream call outcome such as "ok", "error" or "cached"
func (m *Metrics) UpstreamResult(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.Upstream.WithLabelValues(endpoint, outcome).Inc()
}

// SetBreakerState maps a breaker state name to a gauge value
func (m *Metrics) SetBreakerState(name, state string) {
	if m == nil {
		return
	}
	v := 0.0
	switch state {
	case "open":
		v = 1
	case "half_open":
		v = 0.5
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// ObserveIngest records a finished ingest job
func (m *Metrics) ObserveIngest(job string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(job, strconv.FormatBool(ok)).Inc()
	m.IngestSeconds.WithLabelValues(job).Observe(d.Seconds())
}

// SignalEmitted counts a returned signal
func (m *Metrics) SignalEmitted(severity string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(severity).Inc()
}
