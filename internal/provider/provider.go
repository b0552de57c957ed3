// Package provider defines the pluggable LLM adapter contract, the concrete
// adapters and the registry that resolves the active one from configuration.
package provider

import (
	"context"

	"github.com/autoresumefiller/autofill/internal/cost"
	"github.com/autoresumefiller/autofill/internal/model"
)

// GenerateRequest is one generation call.
type GenerateRequest struct {
	// Model overrides the adapter's configured model when set.
	Model string
	// System holds stable instructions shared by every field.
	System string
	// Context holds per-application context (profile, job posting). Adapters
	// that support prompt caching cache it separately from Prompt.
	Context string
	// Prompt is the field-specific instruction.
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks for a bare JSON object where the provider supports it.
	JSON bool

	// Label and Purpose describe the field for adapters that answer
	// without a model.
	Label   string
	Purpose model.Purpose
}

// Extraction is the result of a structured extraction call.
type Extraction struct {
	Data   map[string]any  `json:"data"`
	Answer *model.AIAnswer `json:"usage"`
}

// Adapter is the capability set every provider exposes. Callers never
// branch on which provider is behind it.
type Adapter interface {
	Name() string
	Model() string
	DefaultModel() string
	Generate(ctx context.Context, req GenerateRequest) (*model.AIAnswer, error)
	Extract(ctx context.Context, text string, schema map[string]any) (*Extraction, error)
	ValidateCredentials(ctx context.Context) (bool, error)
	ListModels(ctx context.Context) ([]string, error)
	// PricePerThousandTokens returns the price of model, or of the
	// configured model when model is empty.
	PricePerThousandTokens(model string) cost.Price
}
