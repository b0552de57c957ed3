package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/model"
	"github.com/autoresumefiller/autofill/pkg/openai"
)

// perplexityModels is served locally because Perplexity has no model
// listing endpoint.
var perplexityModels = []string{"sonar", "sonar-pro", "sonar-reasoning", "sonar-reasoning-pro"}

// OpenAICompatible adapts any OpenAI-style chat completions API.
type OpenAICompatible struct {
	base
	client openai.Client
	// jsonMode enables response_format json_object for extraction.
	jsonMode bool
	// staticModels replaces the /models endpoint when set.
	staticModels []string
}

// NewOpenAICompatible wraps an OpenAI-compatible client under name.
func NewOpenAICompatible(name string, client openai.Client, pc config.ProviderConfig, opts Options) *OpenAICompatible {
	return &OpenAICompatible{base: newBase(name, pc, opts), client: client, jsonMode: true}
}

func newOpenAIFactory(name string, pc config.ProviderConfig, opts Options) (Adapter, error) {
	clientOpts := []openai.Option{
		openai.WithName(name),
		openai.WithBaseURL(pc.BaseURL),
		openai.WithModel(pc.Model),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, openai.WithHTTPClient(opts.HTTPClient))
	}
	return NewOpenAICompatible(name, openai.NewClient(pc.Key, clientOpts...), pc, opts), nil
}

func newPerplexityFactory(name string, pc config.ProviderConfig, opts Options) (Adapter, error) {
	a, err := newOpenAIFactory(name, pc, opts)
	if err != nil {
		return nil, err
	}
	p := a.(*OpenAICompatible)
	p.jsonMode = false
	p.staticModels = perplexityModels
	return p, nil
}

func (o *OpenAICompatible) Generate(ctx context.Context, req GenerateRequest) (*model.AIAnswer, error) {
	return o.generate(ctx, req, func(ctx context.Context, modelName string, req GenerateRequest) (*completion, error) {
		var messages []openai.Message
		if sys := joinSystem(req.System, req.Context); sys != "" {
			messages = append(messages, openai.Message{Role: "system", Content: sys})
		}
		messages = append(messages, openai.Message{Role: "user", Content: req.Prompt})

		temperature := req.Temperature
		maxTokens := req.MaxTokens
		chatReq := openai.ChatCompletionRequest{
			Model:       modelName,
			Messages:    messages,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		}
		if req.JSON && o.jsonMode {
			chatReq.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
		}

		resp, err := o.client.ChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, o.wrap(modelName, err)
		}

		truncated := len(resp.Choices) > 0 && resp.Choices[0].FinishReason == "length"
		return &completion{
			Text:             resp.Text(),
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			Truncated:        truncated,
		}, nil
	})
}

func (o *OpenAICompatible) Extract(ctx context.Context, text string, schema map[string]any) (*Extraction, error) {
	return extractWith(ctx, o, text, schema)
}

func (o *OpenAICompatible) ValidateCredentials(ctx context.Context) (bool, error) {
	if len(o.staticModels) == 0 {
		return o.validateByListing(ctx, o.ListModels)
	}

	// Without a listing endpoint the cheapest authenticated call is a
	// one-token completion.
	one := 1
	_, err := o.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  []openai.Message{{Role: "user", Content: "ping"}},
		MaxTokens: &one,
	})
	if err == nil {
		return true, nil
	}
	pe := o.wrap(o.model, err)
	if pe.Kind == model.ErrAuthentication {
		return false, nil
	}
	return false, pe
}

func (o *OpenAICompatible) ListModels(ctx context.Context) ([]string, error) {
	if len(o.staticModels) > 0 {
		return append([]string(nil), o.staticModels...), nil
	}
	ids, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, o.wrap(o.model, err)
	}
	return ids, nil
}

func (o *OpenAICompatible) wrap(modelName string, err error) *Error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return classify(o.name, modelName, 0, err)
	}

	pe := classify(o.name, modelName, apiErr.StatusCode, eris.Wrapf(err, "%s adapter", o.name))
	if apiErr.Code == "model_not_found" {
		pe.Kind = model.ErrModelUnavailable
	}
	return pe
}

func joinSystem(instructions, context string) string {
	switch {
	case instructions == "":
		return context
	case context == "":
		return instructions
	default:
		return instructions + "\n\n" + context
	}
}
