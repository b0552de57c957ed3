package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresumefiller/autofill/internal/cost"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (m *memorySink) InsertUsage(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func TestTracker_RecordCost(t *testing.T) {
	tr := NewTracker()
	got := tr.Record("openai", "gpt-4", cost.Price{Prompt: 0.03, Completion: 0.06}, 200, 100)
	assert.Equal(t, 0.012, got)

	totals := tr.Totals()
	assert.Equal(t, 1, totals.Requests)
	assert.Equal(t, 300, totals.TotalTokens)
	assert.Equal(t, 0.012, totals.CostUSD)
}

func TestTracker_ByProvider(t *testing.T) {
	tr := NewTracker()
	price := cost.Price{Prompt: 0.001, Completion: 0.002}
	tr.Record("anthropic", "claude-haiku-4-5", price, 1000, 1000)
	tr.Record("anthropic", "claude-haiku-4-5", price, 1000, 0)
	tr.Record("offline", "offline-template", cost.Price{}, 50, 20)

	by := tr.ByProvider()
	require.Len(t, by, 2)
	assert.Equal(t, 2, by["anthropic"].Requests)
	assert.Equal(t, 0.004, by["anthropic"].CostUSD)
	assert.Equal(t, 70, by["offline"].TotalTokens)
	assert.Zero(t, by["offline"].CostUSD)

	rep := tr.Report()
	assert.Equal(t, []string{"anthropic", "offline"}, rep.Providers())
	assert.Equal(t, 3, rep.Total.Requests)

	by["anthropic"] = Totals{}
	assert.Equal(t, 2, tr.ByProvider()["anthropic"].Requests, "snapshots are copies")
}

func TestTracker_SinceWindowAndRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := NewTracker(WithClock(clock), WithRetention(48*time.Hour))
	price := cost.Price{Prompt: 0.01, Completion: 0.01}

	tr.Record("openai", "gpt-4o", price, 100, 0)
	now = now.Add(24 * time.Hour)
	tr.Record("openai", "gpt-4o", price, 200, 0)
	now = now.Add(24 * time.Hour)
	tr.Record("anthropic", "claude-haiku-4-5", price, 300, 0)

	rep := tr.Since(now.Add(-time.Hour))
	assert.Equal(t, 1, rep.Total.Requests)
	assert.Equal(t, 300, rep.Total.PromptTokens)

	rep = tr.Since(time.Time{})
	assert.Equal(t, 3, rep.Total.Requests, "records exactly at the cutoff are kept")

	now = now.Add(time.Hour)
	tr.Record("anthropic", "claude-haiku-4-5", price, 1, 0)
	rep = tr.Since(time.Time{})
	assert.Equal(t, 3, rep.Total.Requests, "records past retention are pruned")
	assert.Equal(t, 4, tr.Totals().Requests, "lifetime totals are unaffected")
}

func TestTracker_Sink(t *testing.T) {
	sink := &memorySink{}
	tr := NewTracker(WithSink(sink))
	tr.RecordSession(context.Background(), "s1", "openai", "gpt-4o-mini", cost.Price{}, 10, 5)

	require.Len(t, sink.records, 1)
	r := sink.records[0]
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, 15, r.TotalTokens)
	assert.NotEmpty(t, r.ID)
}

func TestTracker_SinkFailureIsNotFatal(t *testing.T) {
	tr := NewTracker(WithSink(&memorySink{err: errors.New("disk full")}))
	got := tr.Record("openai", "gpt-4", cost.Price{Prompt: 0.03, Completion: 0.06}, 200, 100)
	assert.Equal(t, 0.012, got)
	assert.Equal(t, 1, tr.Totals().Requests)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	price := cost.Price{Prompt: 0.001, Completion: 0.001}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("openai", "gpt-4o-mini", price, 1000, 0)
		}()
	}
	wg.Wait()

	totals := tr.Totals()
	assert.Equal(t, 100, totals.Requests)
	assert.Equal(t, 0.1, totals.CostUSD)
}
