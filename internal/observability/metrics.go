package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects bridge metrics.
type Metrics interface {
	RecordRequest(labels RequestLabels, duration time.Duration)
	RecordRouting(scenario string, explicit bool)
	RecordAttempt(labels AttemptLabels, duration time.Duration)
	RecordFallback(from, to string)
	BackendStarted()
	BackendFinished()
}

// RequestLabels contains HTTP request metric dimensions.
type RequestLabels struct {
	Method string
	Route  string
	Status int
}

// AttemptLabels contains backend attempt metric dimensions.
type AttemptLabels struct {
	Model     string
	Backend   string
	Outcome   string
	ErrorKind string
}

// PrometheusMetrics implements Metrics on a dedicated registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	routing         *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// NewPrometheusMetrics registers every collector on a fresh registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"method", "route"},
		),
		routing: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_bridge_routing_decisions_total",
				Help: "Routing decisions by scenario",
			},
			[]string{"scenario", "explicit"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_bridge_backend_attempts_total",
				Help: "Backend invocations by model and outcome",
			},
			[]string{"model", "backend", "outcome", "error_kind"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_bridge_backend_attempt_duration_seconds",
				Help:    "Backend attempt duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 13),
			},
			[]string{"model", "backend"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_bridge_fallbacks_total",
				Help: "Transitions from a failed model to the next chain entry",
			},
			[]string{"from", "to"},
		),
		inflight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "llm_bridge_backend_inflight",
				Help: "Backend invocations currently holding a concurrency slot",
			},
		),
	}
}

// Registry exposes the underlying registry for tests and custom exporters
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordRequest(labels RequestLabels, duration time.Duration) {
	m.requests.WithLabelValues(labels.Method, labels.Route, strconv.Itoa(labels.Status)).Inc()
	m.requestDuration.WithLabelValues(labels.Method, labels.Route).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRouting(scenario string, explicit bool) {
	m.routing.WithLabelValues(scenario, strconv.FormatBool(explicit)).Inc()
}

func (m *PrometheusMetrics) RecordAttempt(labels AttemptLabels, duration time.Duration) {
	m.attempts.WithLabelValues(labels.Model, labels.Backend, labels.Outcome, labels.ErrorKind).Inc()
	m.attemptDuration.WithLabelValues(labels.Model, labels.Backend).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordFallback(from, to string) {
	m.fallbacks.WithLabelValues(from, to).Inc()
}

func (m *PrometheusMetrics) BackendStarted() {
	m.inflight.Inc()
}

func (m *PrometheusMetrics) BackendFinished() {
	m.inflight.Dec()
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordRequest(RequestLabels, time.Duration) {}
func (NopMetrics) RecordRouting(string, bool)                 {}
func (NopMetrics) RecordAttempt(AttemptLabels, time.Duration) {}
func (NopMetrics) RecordFallback(string, string)              {}
func (NopMetrics) BackendStarted()                            {}
func (NopMetrics) BackendFinished()                           {}
