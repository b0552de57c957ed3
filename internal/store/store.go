// Package store persists usage records so spend survives restarts.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/usage"
)

// UsageFilter selects records for listing.
type UsageFilter struct {
	Since    time.Time `json:"since,omitempty"`
	Until    time.Time `json:"until,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// ProviderTotals is one row of a usage summary.
type ProviderTotals struct {
	Provider         string  `json:"provider"`
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageStore defines the persistence interface for usage records.
type UsageStore interface {
	InsertUsage(ctx context.Context, r usage.Record) error
	ListUsage(ctx context.Context, filter UsageFilter) ([]usage.Record, error)
	// Summarize totals records in [since, until) per provider. A zero until
	// means no upper bound.
	Summarize(ctx context.Context, since, until time.Time) ([]ProviderTotals, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// Open connects the store selected by cfg and applies migrations. The
// "none" driver returns a nil store.
func Open(ctx context.Context, cfg config.StoreConfig) (UsageStore, error) {
	var (
		st  UsageStore
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
