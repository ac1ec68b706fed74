package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_request"
	OutcomeConflict    = "conflict"
	OutcomeRejected    = "rejected"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	authOutcomes *prometheus.CounterVec
}

// NewMetrics initializes and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_operations_total",
			Help: "Identity operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.errors, m.authOutcomes)
	return m
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordAuthOutcome counts the result of a sign-up, sign-in or lookup.
func (m *Metrics) RecordAuthOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
