package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration for the given command mode ("serve",
// "resolve" or "usage") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.Host == "" {
			errs = append(errs, "server.host is required")
		}
		errs = append(errs, c.validateEngine()...)
	case "resolve":
		if c.Profile.Path == "" {
			errs = append(errs, "profile.path is required")
		}
		errs = append(errs, c.validateEngine()...)
	case "usage":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none to query usage")
		}
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config validation: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEngine() []string {
	var errs []string

	if c.Orchestrator.MaxParallel < 1 || c.Orchestrator.MaxParallel > 50 {
		errs = append(errs, "orchestrator.max_parallel must be between 1 and 50")
	}
	if c.Orchestrator.MaxAttempts < 1 {
		errs = append(errs, "orchestrator.max_attempts must be >= 1")
	}
	if c.Cache.Size < 1 {
		errs = append(errs, "cache.size must be >= 1")
	}
	if c.Cache.TTLSecs < 1 {
		errs = append(errs, "cache.ttl_secs must be >= 1")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, "ai.temperature must be between 0 and 2")
	}
	if c.AI.MaxTokens < 1 {
		errs = append(errs, "ai.max_tokens must be >= 1")
	}
	for name, p := range c.AI.Providers {
		if p.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Sprintf("ai.providers.%s.requests_per_second must be >= 0", name))
		}
	}
	return append(errs, c.validateStore()...)
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "none":
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver)}
	}
	return nil
}
