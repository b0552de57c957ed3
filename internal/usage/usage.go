// Package usage tracks tokens and spend per provider.
package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/cost"
)

const (
	// DefaultRetention bounds the in-memory records kept for windowed views.
	DefaultRetention = 7 * 24 * time.Hour

	sinkTimeout = 5 * time.Second
)

// Record is one provider call.
type Record struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Totals aggregates records.
type Totals struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

func (t *Totals) add(r Record) {
	t.Requests++
	t.PromptTokens += r.PromptTokens
	t.CompletionTokens += r.CompletionTokens
	t.TotalTokens += r.TotalTokens
	t.CostUSD = cost.Round(t.CostUSD+r.CostUSD, cost.DefaultPrecision)
}

// Report is a read-only aggregate view.
type Report struct {
	Since      time.Time         `json:"since,omitempty"`
	Total      Totals            `json:"total"`
	ByProvider map[string]Totals `json:"by_provider"`
}

// Providers returns the provider names in the report, sorted.
func (r Report) Providers() []string {
	names := make([]string, 0, len(r.ByProvider))
	for name := range r.ByProvider {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sink persists records. Failures are logged and never fail the call.
type Sink interface {
	InsertUsage(ctx context.Context, r Record) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSink persists every record to s.
func WithSink(s Sink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithRetention bounds the in-memory history used by Since.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.nowFunc = now }
}

// Tracker keeps running totals of tokens and cost.
type Tracker struct {
	mu         sync.Mutex
	records    []Record
	total      Totals
	byProvider map[string]Totals
	retention  time.Duration
	nowFunc    func() time.Time
	sink       Sink
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		byProvider: make(map[string]Totals),
		retention:  DefaultRetention,
		nowFunc:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Record adds one call priced at price and returns its cost.
func (t *Tracker) Record(provider, model string, price cost.Price, promptTokens, completionTokens int) float64 {
	return t.RecordSession(context.Background(), "", provider, model, price, promptTokens, completionTokens)
}

// RecordSession is Record attributed to a session.
func (t *Tracker) RecordSession(ctx context.Context, sessionID, provider, model string, price cost.Price, promptTokens, completionTokens int) float64 {
	r := Record{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Provider:         provider,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		CostUSD:          price.Cost(promptTokens, completionTokens),
		RecordedAt:       t.nowFunc().UTC(),
	}

	t.mu.Lock()
	t.total.add(r)
	pt := t.byProvider[provider]
	pt.add(r)
	t.byProvider[provider] = pt
	t.records = append(t.records, r)
	t.pruneLocked(r.RecordedAt)
	t.mu.Unlock()

	if t.sink != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()
		if err := t.sink.InsertUsage(sctx, r); err != nil {
			zap.L().Error("usage: persist record",
				zap.String("provider", provider),
				zap.String("model", model),
				zap.Error(err),
			)
		}
	}
	return r.CostUSD
}

func (t *Tracker) pruneLocked(now time.Time) {
	if t.retention <= 0 {
		return
	}
	cutoff := now.Add(-t.retention)
	i := sort.Search(len(t.records), func(i int) bool {
		return !t.records[i].RecordedAt.Before(cutoff)
	})
	if i > 0 {
		t.records = append(t.records[:0:0], t.records[i:]...)
	}
}

// Totals returns lifetime totals across providers.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByProvider returns lifetime totals per provider.
func (t *Tracker) ByProvider() map[string]Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Totals, len(t.byProvider))
	for k, v := range t.byProvider {
		out[k] = v
	}
	return out
}

// Report returns lifetime totals in report form.
func (t *Tracker) Report() Report {
	return Report{Total: t.Totals(), ByProvider: t.ByProvider()}
}

// Since aggregates the retained records at or after since.
func (t *Tracker) Since(since time.Time) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	rep := Report{Since: since, ByProvider: make(map[string]Totals)}
	for _, r := range t.records {
		if r.RecordedAt.Before(since) {
			continue
		}
		rep.Total.add(r)
		pt := rep.ByProvider[r.Provider]
		pt.add(r)
		rep.ByProvider[r.Provider] = pt
	}
	return rep
}
