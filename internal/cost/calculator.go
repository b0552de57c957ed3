package cost

import (
	"math"
	"strings"
)

// DefaultPrecision is the number of decimal places costs are rounded to.
const DefaultPrecision = 6

// Price is the per-1K-token pricing for one provider model, in USD.
type Price struct {
	Prompt     float64 `yaml:"prompt" mapstructure:"prompt"`
	Completion float64 `yaml:"completion" mapstructure:"completion"`
	Precision  int     `yaml:"precision" mapstructure:"precision"`
}

// Cost returns (prompt/1000)*Prompt + (completion/1000)*Completion rounded
// to Precision decimal places (DefaultPrecision when unset).
func (p Price) Cost(promptTokens, completionTokens int) float64 {
	raw := float64(promptTokens)/1000*p.Prompt + float64(completionTokens)/1000*p.Completion
	return Round(raw, p.precision())
}

// IsZero reports whether the price charges nothing.
func (p Price) IsZero() bool {
	return p.Prompt == 0 && p.Completion == 0
}

func (p Price) precision() int {
	if p.Precision <= 0 {
		return DefaultPrecision
	}
	return p.Precision
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// Rates maps provider name to model name to price.
type Rates map[string]map[string]Price

// Calculator resolves prices per provider model and computes costs.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the default rates overlaid with the
// given overrides.
func NewCalculator(overrides Rates) *Calculator {
	rates := DefaultRates()
	for provider, models := range overrides {
		provider = strings.ToLower(provider)
		if rates[provider] == nil {
			rates[provider] = make(map[string]Price)
		}
		for model, price := range models {
			rates[provider][model] = price
		}
	}
	return &Calculator{rates: rates}
}

// Price returns the price for a provider model. Model names match exactly
// first, then by longest known prefix so dated snapshots inherit the family
// price. Unknown models are free.
func (c *Calculator) Price(provider, model string) Price {
	models := c.rates[strings.ToLower(provider)]
	if models == nil {
		return Price{}
	}
	if p, ok := models[model]; ok {
		return p
	}

	var best string
	for name := range models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Price{}
	}
	return models[best]
}

// Cost computes the cost of one call.
func (c *Calculator) Cost(provider, model string, promptTokens, completionTokens int) float64 {
	return c.Price(provider, model).Cost(promptTokens, completionTokens)
}

// DefaultRates returns the default pricing rates (USD per 1K tokens).
func DefaultRates() Rates {
	return Rates{
		"anthropic": {
			"claude-haiku-4-5":  {Prompt: 0.0008, Completion: 0.004},
			"claude-sonnet-4-5": {Prompt: 0.003, Completion: 0.015},
			"claude-opus-4":     {Prompt: 0.015, Completion: 0.075},
		},
		"openai": {
			"gpt-4o-mini": {Prompt: 0.00015, Completion: 0.0006},
			"gpt-4o":      {Prompt: 0.0025, Completion: 0.01},
			"gpt-4":       {Prompt: 0.03, Completion: 0.06},
		},
		"perplexity": {
			"sonar":     {Prompt: 0.001, Completion: 0.001},
			"sonar-pro": {Prompt: 0.003, Completion: 0.015},
		},
		"offline": {},
	}
}
