// Package metrics exposes Prometheus collectors for answer resolution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autoresumefiller/autofill/internal/model"
)

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FieldsResolved   *prometheus.CounterVec
	FieldsFailed     *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderInFlight prometheus.Gauge
	Tokens           *prometheus.CounterVec
	CostUSD          *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FieldsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_fields_resolved_total",
			Help: "Fields answered, by source",
		}, []string{"source"}),
		FieldsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_fields_failed_total",
			Help: "Fields left unanswered, by error kind",
		}, []string{"kind"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_provider_calls_total",
			Help: "Provider generation calls, by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autofill_provider_call_duration_seconds",
			Help:    "Provider generation call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}, []string{"provider"}),
		ProviderInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "autofill_provider_calls_in_flight",
			Help: "Provider calls currently holding a concurrency slot",
		}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_tokens_total",
			Help: "Tokens consumed, by provider and type",
		}, []string{"provider", "type"}),
		CostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_cost_usd_total",
			Help: "Spend in USD, by provider",
		}, []string{"provider"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_cache_lookups_total",
			Help: "Response cache lookups, by result",
		}, []string{"result"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "autofill_batch_duration_seconds",
			Help:    "Wall-clock time to resolve one batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

// FieldResolved counts one answered field.
func (m *Metrics) FieldResolved(source model.Source) {
	if m == nil {
		return
	}
	m.FieldsResolved.WithLabelValues(string(source)).Inc()
}

// FieldFailed counts one failed field.
func (m *Metrics) FieldFailed(kind model.ErrorKind) {
	if m == nil {
		return
	}
	m.FieldsFailed.WithLabelValues(string(kind)).Inc()
}

// ProviderCall records one provider call. outcome is "ok" or an error kind.
func (m *Metrics) ProviderCall(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.ProviderInFlight.Add(delta)
}

// Usage records tokens and spend of a successful call.
func (m *Metrics) Usage(provider string, promptTokens, completionTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	m.Tokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	m.CostUSD.WithLabelValues(provider).Add(costUSD)
}

// CacheLookup counts a response cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Batch observes one batch duration.
func (m *Metrics) Batch(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}
