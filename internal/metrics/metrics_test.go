package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresumefiller/autofill/internal/model"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FieldResolved(model.SourceExtraction)
	m.FieldResolved(model.SourceExtraction)
	m.FieldResolved(model.SourceGeneration)
	m.FieldFailed(model.ErrRateLimited)
	m.ProviderCall("openai", "ok", 0.4)
	m.InFlight(1)
	m.InFlight(1)
	m.InFlight(-1)
	m.Usage("openai", 200, 100, 0.012)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.Batch(1.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FieldsResolved.WithLabelValues("extraction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldsFailed.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderInFlight))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.Tokens.WithLabelValues("openai", "prompt")))
	assert.InDelta(t, 0.012, testutil.ToFloat64(m.CostUSD.WithLabelValues("openai")), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FieldResolved(model.SourceCache)
		m.FieldFailed(model.ErrTimeout)
		m.ProviderCall("x", "ok", 1)
		m.InFlight(1)
		m.Usage("x", 1, 1, 1)
		m.CacheLookup(true)
		m.Batch(1)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
