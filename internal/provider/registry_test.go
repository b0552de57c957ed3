package provider

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/resilience"
)

// countingAdapter wraps Offline and counts credential checks.
type countingAdapter struct {
	*Offline
	validations atomic.Int32
	valid       bool
	err         error
}

func (c *countingAdapter) ValidateCredentials(context.Context) (bool, error) {
	c.validations.Add(1)
	return c.valid, c.err
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		Provider: "fake",
		Providers: map[string]config.ProviderConfig{
			"fake":    {Key: "k", Model: "fake-1"},
			"offline": {Model: "offline-template"},
			"keyed":   {Model: "keyed-1"},
		},
	}
}

func fakeFactories(adapter *countingAdapter) map[string]FactorySpec {
	return map[string]FactorySpec{
		"fake": {New: func(name string, pc config.ProviderConfig, opts Options) (Adapter, error) {
			return adapter, nil
		}, RequiresKey: true},
		"offline": {New: newOfflineFactory},
		"keyed":   {New: newOfflineFactory, RequiresKey: true},
	}
}

func newFakeAdapter(valid bool) *countingAdapter {
	o := NewOffline(config.ProviderConfig{Model: "fake-1"}, Options{})
	o.name = "fake"
	return &countingAdapter{Offline: o, valid: valid}
}

func TestRegistry_ActiveConstructsOnceAndValidatesOnce(t *testing.T) {
	fake := newFakeAdapter(true)
	r := NewRegistry(testAIConfig(), WithFactories(fakeFactories(fake)))

	for i := 0; i < 3; i++ {
		a, err := r.Active(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fake", a.Name())
	}
	assert.Equal(t, int32(1), fake.validations.Load())
}

func TestRegistry_InvalidCredentialsStillReturnAdapter(t *testing.T) {
	fake := newFakeAdapter(false)
	r := NewRegistry(testAIConfig(), WithFactories(fakeFactories(fake)))

	a, err := r.Active(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, _ = r.Active(context.Background())
	assert.Equal(t, int32(1), fake.validations.Load())
}

func TestRegistry_ValidationRetriesTransientErrors(t *testing.T) {
	fake := newFakeAdapter(true)
	fake.err = &Error{Kind: model.ErrTimeout, Err: errors.New("i/o timeout")}
	r := NewRegistry(testAIConfig(),
		WithFactories(fakeFactories(fake)),
		WithValidationRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)

	_, err := r.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.validations.Load())

	// Not marked validated, so the next call checks again.
	fake.err = nil
	_, err = r.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), fake.validations.Load())
}

func TestRegistry_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		reason   string
	}{
		{"empty", "", "no provider configured"},
		{"unknown", "mystery", "unknown provider"},
		{"missing key", "keyed", "missing credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAIConfig()
			cfg.Provider = tt.provider
			r := NewRegistry(cfg, WithFactories(fakeFactories(newFakeAdapter(true))))

			_, err := r.Active(context.Background())
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.reason, ce.Reason)
			assert.Equal(t, model.ErrConfiguration, KindOf(err))
		})
	}
}

func TestRegistry_ValidationRetriesByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   int32
	}{
		{"unavailable", http.StatusServiceUnavailable, 3},
		{"overloaded", 529, 3},
		{"unauthorized", http.StatusUnauthorized, 1},
		{"bad request", http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeAdapter(true)
			fake.err = classify("fake", "m", tt.status, errors.New("upstream"))
			r := NewRegistry(testAIConfig(),
				WithFactories(fakeFactories(fake)),
				WithValidationRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
			)

			_, err := r.Active(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, fake.validations.Load())
		})
	}
}

func TestRegistry_SwitchNotifiesAndRevalidates(t *testing.T) {
	fake := newFakeAdapter(true)
	r := NewRegistry(testAIConfig(), WithFactories(fakeFactories(fake)))

	var changes []string
	r.OnChange(func(from, to string) { changes = append(changes, from+"->"+to) })

	_, err := r.Active(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.Switch("offline"))
	assert.Equal(t, "offline", r.ActiveName())
	a, err := r.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "offline", a.Name())

	require.NoError(t, r.Switch("OFFLINE"), "switching to the active provider is a no-op")
	require.NoError(t, r.Switch("fake"))
	_, err = r.Active(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"fake/fake-1->offline/offline-template", "offline/offline-template->fake/fake-1"}, changes)
	assert.Equal(t, int32(2), fake.validations.Load())
}

func TestRegistry_SwitchRejectsUnusableProvider(t *testing.T) {
	r := NewRegistry(testAIConfig(), WithFactories(fakeFactories(newFakeAdapter(true))))
	var fired bool
	r.OnChange(func(string, string) { fired = true })

	assert.True(t, IsConfigurationError(r.Switch("mystery")))
	assert.True(t, IsConfigurationError(r.Switch("keyed")))
	assert.False(t, fired)
	assert.Equal(t, "fake", r.ActiveName())
}

func TestRegistry_ReloadModelChangeNotifies(t *testing.T) {
	r := NewRegistry(testAIConfig(), WithFactories(fakeFactories(newFakeAdapter(true))))
	var changes int
	r.OnChange(func(string, string) { changes++ })

	cfg := testAIConfig()
	r.Reload(cfg)
	assert.Equal(t, 0, changes)

	cfg.Providers["fake"] = config.ProviderConfig{Key: "k", Model: "fake-2"}
	r.Reload(cfg)
	assert.Equal(t, 1, changes)
}

func TestRegistry_NamesAndDefaults(t *testing.T) {
	r := NewRegistry(config.AIConfig{Provider: "offline", MaxTokens: 300, Temperature: 0.2})
	assert.Equal(t, []string{"anthropic", "offline", "openai", "perplexity"}, r.Names())
	assert.Equal(t, 300, r.Options().MaxTokens)
	assert.Equal(t, 0.2, r.Options().Temperature)

	r.Register("custom", FactorySpec{New: newOfflineFactory})
	assert.Contains(t, r.Names(), "custom")
}

func TestRegistry_BuildsNetworkAdapters(t *testing.T) {
	cfg := config.AIConfig{
		Provider: "anthropic",
		Providers: map[string]config.ProviderConfig{
			"anthropic":  {Key: "k", Model: "claude-haiku-4-5"},
			"openai":     {Key: "k", Model: "gpt-4o-mini"},
			"perplexity": {Key: "k", Model: "sonar-pro"},
		},
	}
	r := NewRegistry(cfg, WithOptions(Options{Calculator: cost.NewCalculator(nil)}))
	for _, name := range []string{"anthropic", "openai", "perplexity"} {
		a, err := r.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, a.Name())
	}
}
