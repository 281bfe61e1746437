// Package telemetry provides OpenTelemetry instrumentation for the
// ads-correlator service. It exports Prometheus metrics and provides
// tracing capabilities.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "ads-correlator"

// Call outcomes recorded on the provider call counter.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
)

// Metrics holds all ads-correlator Prometheus metrics
type Metrics struct {
	// Provider call metrics
	CallsTotal   *prometheus.CounterVec
	CallRetries  *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Export orchestration metrics
	ExportTransitions *prometheus.CounterVec
	ExportJobsActive  prometheus.Gauge
	ExportRowsTotal   prometheus.Counter

	// Join engine metrics
	JoinRequests *prometheus.CounterVec
	JoinDuration *prometheus.HistogramVec
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	metrics := initMetrics()
	tracer := otel.Tracer(serviceName)

	return &Provider{
		Tracer:  tracer,
		Metrics: metrics,
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initCallMetrics(m)
	initCacheMetrics(m)
	initExportMetrics(m)
	initJoinMetrics(m)
	return m
}

func initCallMetrics(m *Metrics) {
	m.CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_provider_calls_total",
		Help: "Total provider API calls by provider and outcome (success, transient, fatal)",
	}, []string{"provider", "outcome"})

	m.CallRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_provider_retries_total",
		Help: "Total retried provider call attempts",
	}, []string{"provider"})

	m.CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ads_correlator_provider_call_duration_seconds",
		Help:    "Duration of provider API calls including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	}, []string{"provider"})
}

func initCacheMetrics(m *Metrics) {
	m.CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_cache_hits_total",
		Help: "Total cacheable calls served from the response cache",
	}, []string{"provider"})

	m.CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_cache_misses_total",
		Help: "Total cacheable calls that went to the provider",
	}, []string{"provider"})
}

func initExportMetrics(m *Metrics) {
	m.ExportTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_export_transitions_total",
		Help: "Total export job state transitions by entered state",
	}, []string{"state"})

	m.ExportJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ads_correlator_export_jobs_active",
		Help: "Export jobs currently tracked and not terminal",
	})

	m.ExportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ads_correlator_export_rows_total",
		Help: "Total rows consumed from export part downloads",
	})
}

func initJoinMetrics(m *Metrics) {
	m.JoinRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ads_correlator_join_requests_total",
		Help: "Total join requests by strategy and result status",
	}, []string{"strategy", "status"})

	m.JoinDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ads_correlator_join_duration_seconds",
		Help:    "End-to-end join request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"strategy"})
}

// RecordCall records one provider call with its terminal outcome
func (p *Provider) RecordCall(ctx context.Context, provider, outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.CallsTotal.WithLabelValues(provider, outcome).Inc()
	p.Metrics.CallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRetry records one retried call attempt
func (p *Provider) RecordRetry(provider string) {
	if p == nil {
		return
	}
	p.Metrics.CallRetries.WithLabelValues(provider).Inc()
}

// RecordCacheHit records a cacheable call served from the cache
func (p *Provider) RecordCacheHit(provider string) {
	if p == nil {
		return
	}
	p.Metrics.CacheHits.WithLabelValues(provider).Inc()
}

// RecordCacheMiss records a cacheable call that reached the provider
func (p *Provider) RecordCacheMiss(provider string) {
	if p == nil {
		return
	}
	p.Metrics.CacheMisses.WithLabelValues(provider).Inc()
}

// RecordExportTransition records an export job entering a state
func (p *Provider) RecordExportTransition(state string) {
	if p == nil {
		return
	}
	p.Metrics.ExportTransitions.WithLabelValues(state).Inc()
}

// RecordExportRows records rows consumed from a downloaded part
func (p *Provider) RecordExportRows(rows int) {
	if p == nil {
		return
	}
	p.Metrics.ExportRowsTotal.Add(float64(rows))
}

// SetExportJobsActive sets the current count of live export jobs
func (p *Provider) SetExportJobsActive(count int) {
	if p == nil {
		return
	}
	p.Metrics.ExportJobsActive.Set(float64(count))
}

// RecordJoin records one join request with its result status
func (p *Provider) RecordJoin(ctx context.Context, strategy, status string, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.JoinRequests.WithLabelValues(strategy, status).Inc()
	p.Metrics.JoinDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
