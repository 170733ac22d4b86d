// Package metrics exposes Prometheus metrics for completion dispatches and
// HTTP traffic on a registry owned by the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeNotConfigured    = "provider_not_configured"
	OutcomeModelUnavailable = "model_not_available"
	OutcomeUpstreamError    = "upstream_error"

	// UnknownLabel replaces provider or model names that failed validation.
	UnknownLabel = "unknown"
)

// LLMBuckets covers completion latencies from 100ms to 2 minutes.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Recorder receives dispatch and HTTP observations.
type Recorder interface {
	ObserveDispatch(provider, model, outcome string, elapsed time.Duration, usage map[string]int)
	ObserveHTTPRequest(route string, status int)
}

// Metrics is the Prometheus backed Recorder.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New registers the gateway metrics plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_dispatch_total",
				Help: "Completion dispatches by provider, model and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_dispatch_duration_seconds",
				Help:    "Upstream completion latency",
				Buckets: LLMBuckets,
			},
			[]string{"provider"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_total",
				Help: "Token counts reported by providers",
			},
			[]string{"provider", "model", "kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "HTTP requests by route pattern and status code",
			},
			[]string{"route", "status"},
		),
	}

	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.tokensTotal,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDispatch counts one dispatch. Latency is only recorded for calls
// that reached the provider.
func (m *Metrics) ObserveDispatch(provider, model, outcome string, elapsed time.Duration, usage map[string]int) {
	m.dispatchTotal.WithLabelValues(provider, model, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeUpstreamError {
		m.dispatchDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
	for kind, n := range usage {
		if kind == "total_tokens" || n <= 0 {
			continue
		}
		m.tokensTotal.WithLabelValues(provider, model, kind).Add(float64(n))
	}
}

func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Noop discards all observations.
type Noop struct{}

func (Noop) ObserveDispatch(provider, model, outcome string, elapsed time.Duration, usage map[string]int) {
}

func (Noop) ObserveHTTPRequest(route string, status int) {}

// NoopHandler answers 204 when metrics are disabled.
func NoopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
