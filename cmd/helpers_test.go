package main

import (
	"testing"

	"github.com/autoresumefiller/autofill/internal/config"
)

// setTestConfig installs an offline-only configuration for the duration of
// the test.
func setTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{
		AI: config.AIConfig{
			Provider:           "offline",
			MaxTokens:          500,
			RequestTimeoutSecs: 5,
			Providers: map[string]config.ProviderConfig{
				"offline":   {Model: "offline-template", DefaultModel: "offline-template"},
				"anthropic": {Model: "claude-haiku-4-5"},
				"openai":    {Key: "sk-test", Model: "gpt-4o-mini"},
			},
		},
		Orchestrator: config.OrchestratorConfig{MaxParallel: 2, MaxAttempts: 3, InitialBackoffMs: 10, MaxBackoffMs: 40},
		Cache:        config.CacheConfig{Size: 10, TTLSecs: 60},
		Session:      config.SessionConfig{InactivityTimeoutHours: 1, SweepIntervalMins: 10},
		Profile:      config.ProfileConfig{Path: t.TempDir() + "/missing.json", MaxBackups: 3},
		Store:        config.StoreConfig{Driver: "none"},
		Server:       config.ServerConfig{Host: "127.0.0.1", Port: 8765},
		Log:          config.LogConfig{Level: "info", Format: "json"},
	}
	return cfg
}
