package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/usage"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func record(id, provider string, at time.Time, prompt, completion int, costUSD float64) usage.Record {
	return usage.Record{
		ID:               id,
		SessionID:        "s1",
		Provider:         provider,
		Model:            provider + "-model",
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		CostUSD:          costUSD,
		RecordedAt:       at,
	}
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_InsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertUsage(ctx, record("r1", "openai", baseTime, 200, 100, 0.012)))
	require.NoError(t, st.InsertUsage(ctx, record("r2", "anthropic", baseTime.Add(time.Minute), 50, 10, 0.001)))
	require.NoError(t, st.InsertUsage(ctx, record("r3", "openai", baseTime.Add(2*time.Minute), 10, 10, 0.0001)))

	all, err := st.ListUsage(ctx, UsageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID, "newest first")
	assert.True(t, all[2].RecordedAt.Equal(baseTime))
	assert.Equal(t, 300, all[2].TotalTokens)

	openai, err := st.ListUsage(ctx, UsageFilter{Provider: "openai", Since: baseTime.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, openai, 1)
	assert.Equal(t, "r3", openai[0].ID)

	limited, err := st.ListUsage(ctx, UsageFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_InsertDuplicateID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertUsage(ctx, record("dup", "openai", baseTime, 1, 1, 0)))
	err := st.InsertUsage(ctx, record("dup", "openai", baseTime, 1, 1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert usage dup")
}

func TestSQLite_Summarize(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertUsage(ctx, record("r1", "openai", baseTime, 200, 100, 0.012)))
	require.NoError(t, st.InsertUsage(ctx, record("r2", "openai", baseTime.Add(time.Hour), 200, 100, 0.012)))
	require.NoError(t, st.InsertUsage(ctx, record("r3", "anthropic", baseTime.Add(2*time.Hour), 100, 50, 0.0003)))

	sum, err := st.Summarize(ctx, baseTime, time.Time{})
	require.NoError(t, err)
	require.Len(t, sum, 2)
	assert.Equal(t, "anthropic", sum[0].Provider)
	assert.Equal(t, ProviderTotals{Provider: "openai", Requests: 2, PromptTokens: 400, CompletionTokens: 200, TotalTokens: 600, CostUSD: 0.024}, sum[1])

	windowed, err := st.Summarize(ctx, baseTime.Add(30*time.Minute), baseTime.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, 1, windowed[0].Requests)
}

func TestSQLite_AsTrackerSink(t *testing.T) {
	st := newTestSQLiteStore(t)
	tr := usage.NewTracker(usage.WithSink(st))
	tr.Record("openai", "gpt-4", cost.Price{Prompt: 0.03, Completion: 0.06}, 200, 100)

	sum, err := st.Summarize(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.Equal(t, 0.012, sum[0].CostUSD)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "usage.db")})
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	_, err = st.ListUsage(ctx, UsageFilter{})
	require.NoError(t, err)

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unknown driver")
}
