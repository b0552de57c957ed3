package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/pkg/anthropic"
)

// Anthropic adapts the Anthropic Messages API.
type Anthropic struct {
	base
	client anthropic.Client
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, pc config.ProviderConfig, opts Options) *Anthropic {
	return &Anthropic{base: newBase("anthropic", pc, opts), client: client}
}

func newAnthropicFactory(name string, pc config.ProviderConfig, opts Options) (Adapter, error) {
	client := anthropic.NewClient(pc.Key, anthropic.WithBaseURL(pc.BaseURL))
	a := NewAnthropic(client, pc, opts)
	a.name = name
	return a, nil
}

func (a *Anthropic) Generate(ctx context.Context, req GenerateRequest) (*model.AIAnswer, error) {
	return a.generate(ctx, req, func(ctx context.Context, modelName string, req GenerateRequest) (*completion, error) {
		temperature := req.Temperature
		resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       modelName,
			MaxTokens:   int64(req.MaxTokens),
			System:      systemBlocks(req.System, req.Context),
			Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
			Temperature: &temperature,
		})
		if err != nil {
			return nil, a.wrap(modelName, err)
		}
		return &completion{
			Text:             resp.Text(),
			Model:            resp.Model,
			PromptTokens:     int(resp.Usage.PromptTokens()),
			CompletionTokens: int(resp.Usage.OutputTokens),
			Truncated:        resp.StopReason == "max_tokens",
		}, nil
	})
}

func (a *Anthropic) Extract(ctx context.Context, text string, schema map[string]any) (*Extraction, error) {
	return extractWith(ctx, a, text, schema)
}

func (a *Anthropic) ValidateCredentials(ctx context.Context) (bool, error) {
	return a.validateByListing(ctx, a.ListModels)
}

func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	ids, err := a.client.ListModels(ctx)
	if err != nil {
		return nil, a.wrap(a.model, err)
	}
	return ids, nil
}

func (a *Anthropic) wrap(modelName string, err error) *Error {
	return classify(a.name, modelName, anthropic.StatusCode(err), eris.Wrap(err, "anthropic adapter"))
}

// systemBlocks puts the per-application context behind the cache breakpoint.
func systemBlocks(instructions, context string) []anthropic.SystemBlock {
	switch {
	case instructions == "" && context == "":
		return nil
	case instructions == "":
		return anthropic.BuildCachedSystemBlocks(context, "")
	default:
		return anthropic.BuildCachedSystemBlocks(instructions, context)
	}
}
