// Package orchestrator resolves a batch of form fields into answers: profile
// lookups for factual fields, session and cache reuse, and bounded
// concurrent generation with retries for the rest.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/autoresumefiller/autofill/internal/cache"
	"github.com/autoresumefiller/autofill/internal/classify"
	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/metrics"
	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/internal/profile"
	"github.com/autoresumefiller/autofill/internal/provider"
	"github.com/autoresumefiller/autofill/internal/resilience"
	"github.com/autoresumefiller/autofill/internal/session"
	"github.com/autoresumefiller/autofill/internal/usage"
)

const (
	DefaultMaxParallel = 5
	DefaultCallTimeout = 30 * time.Second
)

// ProfileLookup supplies factual values by data path. A missing value is
// reported with profile.ErrNotFound.
type ProfileLookup interface {
	Lookup(dataPath string) (string, error)
	Summary() string
}

// Config bounds concurrency and retries.
type Config struct {
	MaxParallel int
	Retry       resilience.RetryConfig
	CallTimeout time.Duration
}

// ConfigFrom derives the orchestrator settings from application config.
func ConfigFrom(cfg *config.Config) Config {
	timeout := time.Duration(cfg.AI.RequestTimeoutSecs) * time.Second
	return Config{
		MaxParallel: cfg.Orchestrator.MaxParallel,
		Retry: resilience.FromRetryConfig(
			cfg.Orchestrator.MaxAttempts,
			cfg.Orchestrator.InitialBackoffMs,
			cfg.Orchestrator.MaxBackoffMs,
		),
		CallTimeout: timeout,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	c.Retry = c.Retry.WithDefaults()
	return c
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProfile sets the factual data source.
func WithProfile(p ProfileLookup) Option {
	return func(o *Orchestrator) { o.profile = p }
}

// WithClassifier replaces the default rule set.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithTracker records usage of every provider call.
func WithTracker(t *usage.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithMetrics publishes Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// Orchestrator resolves batches of fields. It is safe for concurrent use;
// the cache and session store are the only state shared across batches.
type Orchestrator struct {
	cfg        Config
	registry   *provider.Registry
	classifier *classify.Classifier
	profile    ProfileLookup
	cache      *cache.Cache
	sessions   *session.Store
	tracker    *usage.Tracker
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error

	// flights de-duplicates identical cache keys across concurrent batches.
	flights singleflight.Group
}

// New wires an orchestrator. Changing the active provider invalidates the
// response cache.
func New(cfg Config, registry *provider.Registry, c *cache.Cache, sessions *session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		classifier: classify.New(nil),
		cache:      c,
		sessions:   sessions,
		tracker:    usage.NewTracker(),
		sleep:      resilience.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}

	registry.OnChange(func(from, to string) {
		c.InvalidateAll()
	})
	return o
}

// Tracker returns the usage tracker.
func (o *Orchestrator) Tracker() *usage.Tracker {
	return o.tracker
}

// Cache returns the response cache.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.cache
}

// task is one provider generation shared by every field of a batch with
// the same cache key.
type task struct {
	key            string
	field          model.FieldDescriptor
	classification model.Classification
	indices        []int
	forced         bool
	// gen is the cache generation observed when the task was scheduled.
	gen uint64
}

// outcome is the result of a task's generation.
type outcome struct {
	answer   *model.AIAnswer
	attempts int
	// batch is the id of the batch whose call produced the answer.
	batch string
}

// taskError is a task that ended without an answer.
type taskError struct {
	kind     model.ErrorKind
	attempts int
	err      error
}

func (e *taskError) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.err.Error()
}

func (e *taskError) Unwrap() error {
	return e.err
}

// Resolve answers every field in fields and returns one Result per field in
// input order. A configuration error or an unknown session fails the whole
// request; provider failures only fail the affected fields.
func (o *Orchestrator) Resolve(ctx context.Context, sessionID string, fields []model.FieldDescriptor, pctx model.PromptContext, maxParallel int) (*model.BatchResult, error) {
	start := time.Now()
	batchID := uuid.NewString()
	log := zap.L().With(zap.String("session_id", sessionID), zap.String("batch_id", batchID))

	adapter, err := o.registry.Active(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: resolve provider")
	}
	// Read before any lookup so answers finishing after a provider switch
	// are not cached.
	gen := o.cache.Generation()
	scope := adapter.Name() + "/" + adapter.Model()

	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, session.ErrEnded
	}

	if maxParallel <= 0 {
		maxParallel = o.cfg.MaxParallel
	}
	if pctx.ProfileSummary == "" && o.profile != nil {
		pctx.ProfileSummary = o.profile.Summary()
	}

	results := make([]model.Result, len(fields))
	classifications := o.classifier.ClassifyAll(fields)
	var sum model.Summary
	sum.Total = len(fields)

	// Factual fields resolve synchronously from the profile.
	for i, f := range fields {
		c := classifications[i]
		results[i] = model.Result{FieldID: f.ID, Label: f.Label, Classification: c}
		if c.RequiresGeneration {
			continue
		}

		value, ok := o.lookup(f, c)
		if !ok {
			c = c.Creative()
			classifications[i] = c
			results[i].Classification = c
			log.Debug("orchestrator: factual lookup missed, generating",
				zap.String("field_id", f.ID),
				zap.String("data_path", classifications[i].DataPath),
			)
			continue
		}

		answer := model.AIAnswer{Text: value, ProviderName: "profile", Confidence: c.Confidence}
		results[i].Answer = &answer
		results[i].Source = model.SourceExtraction
		results[i].Confidence = c.Confidence
		sum.FromExtraction++
		if err := sess.Record(f.Label, answer); err != nil {
			log.Debug("orchestrator: record factual answer", zap.Error(err))
		}
	}

	// Creative fields: session first, then the response cache, then a task.
	prior := sess.PriorAnswers()
	seen := make(map[string]bool, len(prior))
	for label := range prior {
		seen[model.NormalizeLabel(label)] = true
	}
	for label, text := range pctx.PriorAnswers {
		if !seen[model.NormalizeLabel(label)] {
			prior[label] = text
		}
	}
	fieldCtx := pctx.WithPriorAnswers(prior)

	tasks := make(map[string]*task)
	var order []string
	for i, f := range fields {
		c := classifications[i]
		if !c.RequiresGeneration {
			continue
		}

		forced := sess.NeedsRegeneration(f.ID)
		key := cache.ScopedKey(scope, f.Label, fieldCtx)

		if !forced {
			if a, ok := sess.Answer(f.Label); ok {
				hit := a.WithCacheHit()
				results[i].Answer = &hit
				results[i].Source = model.SourceCache
				results[i].Confidence = hit.Confidence
				sum.FromSession++
				log.Debug("orchestrator: session hit", zap.String("field_id", f.ID))
				continue
			}
			if a, ok := o.cache.GetKey(key); ok {
				o.metrics.CacheLookup(true)
				results[i].Answer = &a
				results[i].Source = model.SourceCache
				results[i].Confidence = a.Confidence
				sum.FromCache++
				if err := sess.Record(f.Label, a); err != nil {
					log.Debug("orchestrator: record cached answer", zap.Error(err))
				}
				log.Debug("orchestrator: cache hit", zap.String("field_id", f.ID))
				continue
			}
			o.metrics.CacheLookup(false)
		}

		t, ok := tasks[key]
		if !ok {
			t = &task{key: key, field: f, classification: c, gen: gen}
			tasks[key] = t
			order = append(order, key)
		}
		t.indices = append(t.indices, i)
		t.forced = t.forced || forced
	}

	// Misses run concurrently. The semaphore gates provider calls only, so
	// backoff sleeps never hold a slot.
	sem := semaphore.NewWeighted(int64(maxParallel))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range order {
		t := tasks[key]
		g.Go(func() error {
			out, err := o.runTask(gctx, batchID, sess, adapter, sem, t, fieldCtx, prior)

			mu.Lock()
			defer mu.Unlock()
			o.apply(results, &sum, sess, t, out, err, batchID)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.ErrorKind != "":
			sum.Failed++
			o.metrics.FieldFailed(r.ErrorKind)
		case r.Answer != nil:
			o.metrics.FieldResolved(r.Source)
		}
	}
	sum.TotalCostUSD = cost.Round(sum.TotalCostUSD, cost.DefaultPrecision)
	sum.DurationMs = time.Since(start).Milliseconds()
	o.metrics.Batch(time.Since(start).Seconds())

	log.Info("orchestrator: batch resolved",
		zap.String("provider", adapter.Name()),
		zap.Int("total", sum.Total),
		zap.Int("extraction", sum.FromExtraction),
		zap.Int("session", sum.FromSession),
		zap.Int("cache", sum.FromCache),
		zap.Int("generated", sum.Generated),
		zap.Int("failed", sum.Failed),
		zap.Int("tokens", sum.TotalTokens),
		zap.Float64("cost_usd", sum.TotalCostUSD),
		zap.Int64("duration_ms", sum.DurationMs),
	)

	return &model.BatchResult{SessionID: sessionID, Results: results, Summary: sum}, nil
}

// lookup resolves a factual field from the profile, mapping enumerated
// fields onto one of their options.
func (o *Orchestrator) lookup(f model.FieldDescriptor, c model.Classification) (string, bool) {
	if o.profile == nil || c.DataPath == "" {
		return "", false
	}

	value, err := o.profile.Lookup(c.DataPath)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			zap.L().Warn("orchestrator: profile lookup failed",
				zap.String("field_id", f.ID),
				zap.String("data_path", c.DataPath),
				zap.Error(err),
			)
		}
		return "", false
	}

	if f.IsEnumerated() {
		return profile.MatchOption(value, f.Options)
	}
	return value, true
}

// apply fans a task outcome out to every field that shares it.
func (o *Orchestrator) apply(results []model.Result, sum *model.Summary, sess *session.Session, t *task, out *outcome, err error, batchID string) {
	if err == nil && sess.Ended() {
		err = &taskError{kind: model.ErrSessionEnded, attempts: out.attempts}
	}

	if err != nil {
		var te *taskError
		if !errors.As(err, &te) {
			te = &taskError{kind: provider.KindOf(err), err: err}
		}
		for _, i := range t.indices {
			results[i].ErrorKind = te.kind
			results[i].Attempts = te.attempts
		}
		zap.L().Error("orchestrator: field failed",
			zap.String("field_id", t.field.ID),
			zap.String("kind", string(te.kind)),
			zap.Int("attempts", te.attempts),
			zap.Error(te.err),
		)
		return
	}

	if out.batch == batchID {
		sum.TotalTokens += out.answer.TokensUsed
		sum.TotalCostUSD += out.answer.CostUSD
	}

	for _, i := range t.indices {
		answer := *out.answer
		if opts := t.field.Options; len(opts) > 0 {
			if opt, ok := profile.MatchOption(answer.Text, opts); ok {
				answer.Text = opt
			}
		}
		results[i].Answer = &answer
		results[i].Source = model.SourceGeneration
		results[i].Confidence = answer.Confidence
		results[i].Attempts = out.attempts
		sum.Generated++
	}
	if err := sess.Record(t.field.Label, *out.answer); err != nil {
		zap.L().Debug("orchestrator: record generated answer", zap.Error(err))
		return
	}
	// The regeneration hint stays until a fresh answer is recorded.
	for _, i := range t.indices {
		sess.ClearRegeneration(results[i].FieldID)
	}
}

// runTask generates one task, sharing identical in-flight keys across
// batches. Forced regenerations never share. A shared flight runs under the
// context and session of the batch that started it, so a caller whose own
// session and context are still live runs the task itself when that flight
// stops for the starter's reasons.
func (o *Orchestrator) runTask(ctx context.Context, batchID string, sess *session.Session, adapter provider.Adapter, sem *semaphore.Weighted, t *task, pctx model.PromptContext, prior map[string]string) (*outcome, error) {
	if sess.Ended() {
		return nil, &taskError{kind: model.ErrSessionEnded}
	}

	generate := func() (*outcome, error) {
		return o.generate(ctx, batchID, sess, adapter, sem, t, pctx, prior)
	}
	if t.forced {
		return generate()
	}

	for {
		ch := o.flights.DoChan(t.key, func() (any, error) {
			return generate()
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, &taskError{kind: model.ErrCanceled, err: ctx.Err()}
		case res = <-ch:
		}
		if res.Err == nil {
			return res.Val.(*outcome), nil
		}
		if !res.Shared || !starterStopped(res.Err) || sess.Ended() || ctx.Err() != nil {
			return nil, res.Err
		}

		zap.L().Debug("orchestrator: shared generation stopped, retrying",
			zap.String("field_id", t.field.ID),
			zap.Error(res.Err),
		)
	}
}

// starterStopped reports whether err ended a flight because of the starting
// batch's session or context rather than the provider.
func starterStopped(err error) bool {
	var te *taskError
	if !errors.As(err, &te) {
		return false
	}
	return te.kind == model.ErrSessionEnded || te.kind == model.ErrCanceled
}

// retryState tracks one task through PENDING, IN_FLIGHT and DONE or FAILED.
type retryState struct {
	attempt     int
	retries     int
	model       string
	substituted bool
	lastKind    model.ErrorKind
}

// generate runs the retry state machine for one task.
func (o *Orchestrator) generate(ctx context.Context, batchID string, sess *session.Session, adapter provider.Adapter, sem *semaphore.Weighted, t *task, pctx model.PromptContext, prior map[string]string) (*outcome, error) {
	log := zap.L().With(zap.String("field_id", t.field.ID), zap.String("provider", adapter.Name()))
	opts := o.registry.Options()
	state := retryState{model: adapter.Model()}

	req := provider.GenerateRequest{
		System:      systemPrompt,
		Context:     buildContext(pctx),
		Prompt:      buildPrompt(t.field, t.classification, prior),
		MaxTokens:   maxTokensForTemplate(t.classification.Template, opts.MaxTokens),
		Temperature: opts.Temperature,
		Label:       t.field.Label,
		Purpose:     t.classification.Purpose,
	}

	for {
		if sess.Ended() {
			return nil, &taskError{kind: model.ErrSessionEnded, attempts: state.attempt}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, &taskError{kind: model.ErrCanceled, attempts: state.attempt, err: err}
		}
		if sess.Ended() {
			sem.Release(1)
			return nil, &taskError{kind: model.ErrSessionEnded, attempts: state.attempt}
		}

		state.attempt++
		req.Model = state.model
		answer, err := o.call(ctx, adapter, sem, req)
		if err == nil {
			o.recordUsage(ctx, sess.ID, adapter, answer)
			if !sess.Ended() && !o.cache.SetKeyAt(t.key, t.gen, *answer) {
				log.Debug("orchestrator: cache invalidated during call, answer not cached")
			}
			return &outcome{answer: answer, attempts: state.attempt, batch: batchID}, nil
		}

		state.lastKind = provider.KindOf(err)
		if ctx.Err() != nil {
			return nil, &taskError{kind: model.ErrCanceled, attempts: state.attempt, err: err}
		}

		switch {
		case state.lastKind == model.ErrModelUnavailable && !state.substituted &&
			adapter.DefaultModel() != "" && adapter.DefaultModel() != state.model:
			log.Warn("orchestrator: model unavailable, substituting default",
				zap.String("model", state.model),
				zap.String("default_model", adapter.DefaultModel()),
			)
			state.substituted = true
			state.model = adapter.DefaultModel()

		case state.lastKind.Retryable() && state.attempt < o.cfg.Retry.MaxAttempts:
			delay := resilience.Backoff(state.retries, o.cfg.Retry)
			state.retries++
			log.Warn("orchestrator: retrying generation",
				zap.Int("attempt", state.attempt),
				zap.String("kind", string(state.lastKind)),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if err := o.sleep(ctx, delay); err != nil {
				return nil, &taskError{kind: model.ErrCanceled, attempts: state.attempt, err: err}
			}

		default:
			return nil, &taskError{kind: state.lastKind, attempts: state.attempt, err: err}
		}
	}
}

// call performs one provider call holding an acquired slot and releases it.
func (o *Orchestrator) call(ctx context.Context, adapter provider.Adapter, sem *semaphore.Weighted, req provider.GenerateRequest) (*model.AIAnswer, error) {
	o.metrics.InFlight(1)
	defer func() {
		o.metrics.InFlight(-1)
		sem.Release(1)
	}()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	answer, err := adapter.Generate(callCtx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = &provider.Error{Kind: model.ErrTimeout, Provider: adapter.Name(), Model: req.Model, Err: err}
		}
		o.metrics.ProviderCall(adapter.Name(), string(provider.KindOf(err)), elapsed)
		return nil, err
	}
	o.metrics.ProviderCall(adapter.Name(), "ok", elapsed)
	return answer, nil
}

// recordUsage books the call with the tracker and stamps the tracked cost
// on the answer.
func (o *Orchestrator) recordUsage(ctx context.Context, sessionID string, adapter provider.Adapter, answer *model.AIAnswer) {
	price := adapter.PricePerThousandTokens(answer.ModelName)
	answer.CostUSD = o.tracker.RecordSession(ctx, sessionID, adapter.Name(), answer.ModelName, price, answer.PromptTokens, answer.CompletionTokens)
	o.metrics.Usage(adapter.Name(), answer.PromptTokens, answer.CompletionTokens, answer.CostUSD)
}

// Feedback applies the user's verdict on a proposed answer. Editing or
// rejecting forces the next resolve of that field to generate afresh.
func (o *Orchestrator) Feedback(sessionID, fieldID string, d model.Decision) error {
	if !d.Valid() {
		return eris.Errorf("orchestrator: unknown decision %q", d)
	}
	if d == model.DecisionApprove {
		if _, err := o.sessions.Get(sessionID); err != nil {
			return err
		}
		return nil
	}
	return o.sessions.MarkForRegeneration(sessionID, fieldID)
}

// SwitchProvider makes name the active provider. Listeners registered in
// New clear the response cache.
func (o *Orchestrator) SwitchProvider(ctx context.Context, name string) error {
	if err := o.registry.Switch(name); err != nil {
		return err
	}
	_, err := o.registry.Active(ctx)
	return err
}

// Providers lists registered providers and the active one.
func (o *Orchestrator) Providers() (names []string, active string) {
	return o.registry.Names(), o.registry.ActiveName()
}
