package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/resilience"
)

// Factory builds an adapter from one provider's configuration.
type Factory func(name string, pc config.ProviderConfig, opts Options) (Adapter, error)

// FactorySpec registers a factory together with its credential needs.
type FactorySpec struct {
	New         Factory
	RequiresKey bool
}

// DefaultFactories returns the built-in providers.
func DefaultFactories() map[string]FactorySpec {
	return map[string]FactorySpec{
		"anthropic":  {New: newAnthropicFactory, RequiresKey: true},
		"openai":     {New: newOpenAIFactory, RequiresKey: true},
		"perplexity": {New: newPerplexityFactory, RequiresKey: true},
		"offline":    {New: newOfflineFactory},
	}
}

// ChangeFunc observes active-provider changes. from and to are
// "name/model" identities.
type ChangeFunc func(from, to string)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOptions sets the dependencies handed to factories.
func WithOptions(opts Options) RegistryOption {
	return func(r *Registry) { r.opts = opts }
}

// WithValidationRetry sets the retry policy for credential validation.
func WithValidationRetry(cfg resilience.RetryConfig) RegistryOption {
	return func(r *Registry) { r.retry = cfg }
}

// WithFactories replaces the built-in factory set.
func WithFactories(f map[string]FactorySpec) RegistryOption {
	return func(r *Registry) {
		r.factories = make(map[string]FactorySpec, len(f))
		for name, spec := range f {
			r.factories[strings.ToLower(name)] = spec
		}
	}
}

// Registry resolves the configured provider name to a live adapter.
type Registry struct {
	mu        sync.RWMutex
	cfg       config.AIConfig
	opts      Options
	retry     resilience.RetryConfig
	factories map[string]FactorySpec
	adapters  map[string]Adapter
	validated map[string]bool
	listeners []ChangeFunc

	// validateMu serializes credential checks so concurrent batches
	// trigger at most one.
	validateMu sync.Mutex
}

// NewRegistry creates a registry over cfg with the built-in factories.
func NewRegistry(cfg config.AIConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:       cfg,
		retry:     resilience.DefaultRetryConfig(),
		adapters:  make(map[string]Adapter),
		validated: make(map[string]bool),
	}
	WithFactories(DefaultFactories())(r)
	for _, o := range opts {
		o(r)
	}
	if r.opts.MaxTokens <= 0 {
		r.opts.MaxTokens = cfg.MaxTokens
	}
	if r.opts.Temperature == 0 {
		r.opts.Temperature = cfg.Temperature
	}
	r.opts = r.opts.withDefaults()
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, spec FactorySpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	r.factories[name] = spec
	delete(r.adapters, name)
	delete(r.validated, name)
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveName returns the configured provider name.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return strings.ToLower(r.cfg.Provider)
}

// Options returns the generation defaults handed to adapters.
func (r *Registry) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// OnChange registers a listener fired after the active provider or its
// model changes.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Active returns the adapter for the configured provider. Credentials are
// checked on first use after each configuration change; an invalid result
// is logged and the adapter is still returned so that per-field calls fail
// with authentication_failed.
func (r *Registry) Active(ctx context.Context) (Adapter, error) {
	a, err := r.Get(r.ActiveName())
	if err != nil {
		return nil, err
	}
	r.ensureValidated(ctx, a)
	return a, nil
}

// Get returns the adapter registered under name without validating it.
func (r *Registry) Get(name string) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, &ConfigurationError{Reason: "no provider configured"}
	}

	r.mu.RLock()
	a, ok := r.adapters[name]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}

	spec, ok := r.factories[name]
	if !ok {
		return nil, &ConfigurationError{Reason: "unknown provider", Value: name}
	}
	pc := r.cfg.Providers[name]
	if spec.RequiresKey && strings.TrimSpace(pc.Key) == "" {
		return nil, &ConfigurationError{Reason: "missing credential", Value: name}
	}
	if pc.Model == "" {
		return nil, &ConfigurationError{Reason: "no model configured", Value: name}
	}

	a, err := spec.New(name, pc, r.opts)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: construct %s", name)
	}
	r.adapters[name] = a
	return a, nil
}

func (r *Registry) ensureValidated(ctx context.Context, a Adapter) {
	r.validateMu.Lock()
	defer r.validateMu.Unlock()

	r.mu.RLock()
	done := r.validated[a.Name()]
	r.mu.RUnlock()
	if done {
		return
	}

	// Transient statuses arrive wrapped in resilience.TransientError by
	// classify; auth and model errors are not retried.
	retry := r.retry
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger(a.Name(), "validate_credentials")
	ok, err := resilience.DoVal(ctx, retry, a.ValidateCredentials)
	switch {
	case err != nil:
		// Leave unvalidated so the next batch checks again.
		zap.L().Warn("registry: credential validation failed",
			zap.String("provider", a.Name()),
			zap.Error(err),
		)
		return
	case !ok:
		zap.L().Warn("registry: credentials rejected",
			zap.String("provider", a.Name()),
			zap.String("model", a.Model()),
		)
	default:
		zap.L().Info("registry: credentials validated",
			zap.String("provider", a.Name()),
			zap.String("model", a.Model()),
		)
	}

	r.mu.Lock()
	r.validated[a.Name()] = true
	r.mu.Unlock()
}

// Switch makes name the active provider.
func (r *Registry) Switch(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, err := r.Get(name); err != nil {
		return err
	}

	r.mu.Lock()
	before := r.identityLocked()
	r.cfg.Provider = name
	delete(r.validated, name)
	after := r.identityLocked()
	listeners := append([]ChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	notify(listeners, before, after)
	return nil
}

// Reload replaces the configuration and drops every constructed adapter.
func (r *Registry) Reload(cfg config.AIConfig) {
	r.mu.Lock()
	before := r.identityLocked()
	r.cfg = cfg
	r.adapters = make(map[string]Adapter)
	r.validated = make(map[string]bool)
	after := r.identityLocked()
	listeners := append([]ChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	notify(listeners, before, after)
}

func (r *Registry) identityLocked() string {
	name := strings.ToLower(r.cfg.Provider)
	return name + "/" + r.cfg.Providers[name].Model
}

func notify(listeners []ChangeFunc, before, after string) {
	if before == after {
		return
	}
	zap.L().Info("registry: active provider changed",
		zap.String("from", before),
		zap.String("to", after),
	)
	for _, fn := range listeners {
		fn(before, after)
	}
}
