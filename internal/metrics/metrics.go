// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	movements   *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// application metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaloga",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"pattern", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zaloga",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pattern", "method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaloga",
			Name:      "workflow_transitions_total",
			Help:      "Workflow state changes by entity and resulting status.",
		}, []string{"entity", "status"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaloga",
			Name:      "stock_operations_total",
			Help:      "Stock-changing operations by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.transitions, m.movements,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Transition counts a workflow status change. Nil-safe.
func (m *Metrics) Transition(entity, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, status).Inc()
}

// StockOperation counts a stock-changing operation. Nil-safe.
func (m *Metrics) StockOperation(kind string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware records request count and latency. The matched mux pattern is
// used as the label so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.requests.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.code)).Inc()
		m.duration.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}
