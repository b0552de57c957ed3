package main

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/cache"
	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/metrics"
	"github.com/autoresumefiller/autofill/internal/orchestrator"
	"github.com/autoresumefiller/autofill/internal/profile"
	"github.com/autoresumefiller/autofill/internal/provider"
	"github.com/autoresumefiller/autofill/internal/resilience"
	"github.com/autoresumefiller/autofill/internal/session"
	"github.com/autoresumefiller/autofill/internal/store"
	"github.com/autoresumefiller/autofill/internal/usage"
)

// engineEnv holds everything the serve and resolve commands share.
type engineEnv struct {
	Store        store.UsageStore // may be nil
	Registry     *provider.Registry
	Sessions     *session.Store
	Tracker      *usage.Tracker
	Orchestrator *orchestrator.Orchestrator
	Profile      *profile.Store // may be nil
	Metrics      *prometheus.Registry
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates cfg for mode and wires the store, providers, cache,
// sessions and orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open usage store")
	}

	env := &engineEnv{Store: st, Metrics: prometheus.NewRegistry()}
	env.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	prof, err := loadProfile(cfg.Profile.Path)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Profile = prof

	env.Registry = newRegistry(cfg)

	c, err := cache.New(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSecs)*time.Second)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "create response cache")
	}

	env.Sessions = session.New(
		time.Duration(cfg.Session.InactivityTimeoutHours)*time.Hour,
		time.Duration(cfg.Session.SweepIntervalMins)*time.Minute,
	)

	trackerOpts := []usage.Option{}
	if st != nil {
		trackerOpts = append(trackerOpts, usage.WithSink(st))
	}
	env.Tracker = usage.NewTracker(trackerOpts...)

	opts := []orchestrator.Option{
		orchestrator.WithTracker(env.Tracker),
		orchestrator.WithMetrics(metrics.New(env.Metrics)),
	}
	if prof != nil {
		opts = append(opts, orchestrator.WithProfile(prof))
	}
	env.Orchestrator = orchestrator.New(orchestrator.ConfigFrom(cfg), env.Registry, c, env.Sessions, opts...)

	zap.L().Info("engine initialized",
		zap.String("provider", cfg.AI.Provider),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("profile", prof != nil),
	)
	return env, nil
}

// newRegistry builds the provider registry with pricing overrides and the
// configured validation retry schedule.
func newRegistry(c *config.Config) *provider.Registry {
	return provider.NewRegistry(c.AI,
		provider.WithOptions(provider.Options{
			Calculator:  cost.NewCalculator(pricingRates(c.Pricing)),
			MaxTokens:   c.AI.MaxTokens,
			Temperature: c.AI.Temperature,
		}),
		provider.WithValidationRetry(resilience.FromRetryConfig(
			c.Orchestrator.MaxAttempts,
			c.Orchestrator.InitialBackoffMs,
			c.Orchestrator.MaxBackoffMs,
		)),
	)
}

func pricingRates(p config.PricingConfig) cost.Rates {
	if len(p) == 0 {
		return nil
	}
	rates := make(cost.Rates, len(p))
	for prov, models := range p {
		rates[prov] = make(map[string]cost.Price, len(models))
		for m, mp := range models {
			rates[prov][m] = cost.Price{Prompt: mp.Prompt, Completion: mp.Completion, Precision: mp.Precision}
		}
	}
	return rates
}

// loadProfile reads the profile at path. A missing file is not an error:
// every field is then generated.
func loadProfile(path string) (*profile.Store, error) {
	if path == "" {
		return nil, nil
	}
	prof, err := profile.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("profile not found, factual fields will be generated", zap.String("path", path))
			return nil, nil
		}
		return nil, err
	}
	return prof, nil
}
