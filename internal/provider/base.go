package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/model"
)

const (
	defaultMaxTokens = 500

	// Self-reported confidence of a generated answer. Truncated output is
	// flagged for closer review.
	generatedConfidence = 0.85
	truncatedConfidence = 0.6
)

// Options carries the shared dependencies handed to every factory.
type Options struct {
	Calculator  *cost.Calculator
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

func (o Options) withDefaults() Options {
	if o.Calculator == nil {
		o.Calculator = cost.NewCalculator(nil)
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	return o
}

// completion is the provider-neutral outcome of one model call.
type completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Truncated        bool
}

type callFunc func(ctx context.Context, modelName string, req GenerateRequest) (*completion, error)

// base implements the identity, pricing and pacing parts of Adapter.
type base struct {
	name         string
	model        string
	defaultModel string
	opts         Options
	limiter      *AdaptiveLimiter
}

func newBase(name string, pc config.ProviderConfig, opts Options) base {
	opts = opts.withDefaults()
	defaultModel := pc.DefaultModel
	if defaultModel == "" {
		defaultModel = pc.Model
	}
	return base{
		name:         strings.ToLower(name),
		model:        pc.Model,
		defaultModel: defaultModel,
		opts:         opts,
		limiter:      NewAdaptiveLimiter(name, pc.RequestsPerSecond, 1),
	}
}

func (b *base) Name() string         { return b.name }
func (b *base) Model() string        { return b.model }
func (b *base) DefaultModel() string { return b.defaultModel }

func (b *base) PricePerThousandTokens(modelName string) cost.Price {
	return b.opts.Calculator.Price(b.name, b.resolveModel(modelName))
}

func (b *base) resolveModel(modelName string) string {
	if modelName != "" {
		return modelName
	}
	return b.model
}

// generate runs one paced model call and turns its outcome into an answer
// with usage and cost filled in.
func (b *base) generate(ctx context.Context, req GenerateRequest, call callFunc) (*model.AIAnswer, error) {
	modelName := b.resolveModel(req.Model)
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.opts.MaxTokens
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, classify(b.name, modelName, 0, eris.Wrap(err, "provider: rate limiter wait"))
	}

	start := time.Now()
	out, err := call(ctx, modelName, req)
	if err != nil {
		pe := classify(b.name, modelName, 0, err)
		if pe.Kind == model.ErrRateLimited {
			b.limiter.OnRateLimit()
		}
		return nil, pe
	}
	b.limiter.OnSuccess()

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return nil, &Error{
			Kind:     model.ErrProvider,
			Provider: b.name,
			Model:    modelName,
			Err:      eris.New("provider: empty completion"),
		}
	}

	served := out.Model
	if served == "" {
		served = modelName
	}
	confidence := generatedConfidence
	if out.Truncated {
		confidence = truncatedConfidence
	}

	price := b.opts.Calculator.Price(b.name, served)
	answer := &model.AIAnswer{
		Text:             text,
		ProviderName:     b.name,
		ModelName:        served,
		PromptTokens:     out.PromptTokens,
		CompletionTokens: out.CompletionTokens,
		TokensUsed:       out.PromptTokens + out.CompletionTokens,
		CostUSD:          price.Cost(out.PromptTokens, out.CompletionTokens),
		Confidence:       confidence,
		LatencyMs:        time.Since(start).Milliseconds(),
	}

	zap.L().Debug("provider: generated",
		zap.String("provider", b.name),
		zap.String("model", served),
		zap.Int("tokens", answer.TokensUsed),
		zap.Int64("latency_ms", answer.LatencyMs),
	)
	return answer, nil
}

// validateByListing treats a successful model listing as valid credentials
// and an authentication failure as invalid ones.
func (b *base) validateByListing(ctx context.Context, list func(context.Context) ([]string, error)) (bool, error) {
	_, err := list(ctx)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == model.ErrAuthentication {
		return false, nil
	}
	return false, err
}
