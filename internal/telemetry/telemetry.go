// Package telemetry provides observability with Prometheus metrics for the
// gateway: request counters, per-provider latency histograms, and retry
// counters. Structured logging is handled directly via log/slog at call
// sites, not through this package.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exercised across the request
// orchestrator and provider clients.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	RetryAttempts *prometheus.CounterVec

	FilesInjected     *prometheus.CounterVec
	KBRetrievals      *prometheus.CounterVec
	StreamConnections prometheus.Gauge
}

// NewMetrics creates and registers the gateway's metrics against registry.
// A nil registry registers against prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of chat-completions requests by model, status, and target dialect.",
			},
			[]string{"model", "status", "target_format"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "End-to-end request duration, from ingress to egress.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_requests_in_flight",
				Help: "Number of requests currently being orchestrated.",
			},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_provider_latency_seconds",
				Help:    "Provider invocation latency, per provider and model.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_provider_errors_total",
				Help: "Provider invocation errors by provider and gatewayerr kind.",
			},
			[]string{"provider", "kind"},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_retry_attempts_total",
				Help: "Retry attempts issued by the retry policy, per provider.",
			},
			[]string{"provider"},
		),
		FilesInjected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_files_injected_total",
				Help: "File-context injections performed by the Files subsystem, by outcome.",
			},
			[]string{"outcome"},
		),
		KBRetrievals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_kb_retrievals_total",
				Help: "KB retriever invocations by routing mode.",
			},
			[]string{"mode"},
		),
		StreamConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_stream_connections",
				Help: "Number of currently open SSE streaming responses.",
			},
		),
	}
}

// Handler returns the HTTP handler serving the process's registered
// Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestRecorder accumulates the per-request timing needed to record
// RequestsTotal/RequestDuration/ProviderLatency/ProviderErrors exactly once
// at the end of a request, regardless of which path it took.
type RequestRecorder struct {
	metrics      *Metrics
	model        string
	targetFormat string
	provider     string
	startTime    time.Time
}

// NewRequestRecorder starts timing one request and increments the
// in-flight gauge.
func (m *Metrics) NewRequestRecorder(model, targetFormat string) *RequestRecorder {
	m.RequestsInFlight.Inc()
	return &RequestRecorder{metrics: m, model: model, targetFormat: targetFormat, startTime: time.Now()}
}

// SetProvider records which provider ultimately served the request, once
// routing has resolved it.
func (r *RequestRecorder) SetProvider(provider string) { r.provider = provider }

// RecordSuccess records a completed request (COMPLETED terminal state).
func (r *RequestRecorder) RecordSuccess() {
	duration := time.Since(r.startTime).Seconds()
	r.metrics.RequestsInFlight.Dec()
	r.metrics.RequestsTotal.WithLabelValues(r.model, "success", r.targetFormat).Inc()
	r.metrics.RequestDuration.WithLabelValues(r.model, "success").Observe(duration)
	if r.provider != "" {
		r.metrics.ProviderLatency.WithLabelValues(r.provider, r.model).Observe(duration)
	}
}

// RecordError records a failed request (FAILED terminal state), tagged by
// the gatewayerr.Kind string that caused it.
func (r *RequestRecorder) RecordError(kind string) {
	duration := time.Since(r.startTime).Seconds()
	r.metrics.RequestsInFlight.Dec()
	r.metrics.RequestsTotal.WithLabelValues(r.model, "error", r.targetFormat).Inc()
	r.metrics.RequestDuration.WithLabelValues(r.model, "error").Observe(duration)
	if r.provider != "" {
		r.metrics.ProviderErrors.WithLabelValues(r.provider, kind).Inc()
	}
}

// RecordRetry records one retry attempt issued by the resilience package
// for provider.
func (m *Metrics) RecordRetry(provider string) {
	m.RetryAttempts.WithLabelValues(provider).Inc()
}

// RecordFileInjection records one file-context injection attempt by outcome
// ("success", "error").
func (m *Metrics) RecordFileInjection(outcome string) {
	m.FilesInjected.WithLabelValues(outcome).Inc()
}

// RecordKBRetrieval records one KB routing decision.
func (m *Metrics) RecordKBRetrieval(mode string) {
	m.KBRetrievals.WithLabelValues(mode).Inc()
}
