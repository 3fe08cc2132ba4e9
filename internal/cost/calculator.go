package cost

import (
	"strings"

	"go.uber.org/zap"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for completion usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the USD cost of one completion call. A versioned model
// ID such as "gemini-2.0-flash-001" falls back to its longest configured
// prefix. Unknown providers and models cost 0.
func (c *Calculator) Completion(provider, model string, input, output int) float64 {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "gemini":
		table = c.rates.Gemini
	}
	rate, ok := lookupRate(table, model)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

func lookupRate(table map[string]ModelRate, model string) (ModelRate, bool) {
	if rate, ok := table[model]; ok {
		return rate, true
	}
	var best string
	for name := range table {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return table[best], true
}

// Log computes the cost of a call and logs it as a cost attribution entry.
func (c *Calculator) Log(provider, model, stage string, input, output int) float64 {
	usd := c.Completion(provider, model, input, output)
	zap.L().Info("cost attribution",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int("input_tokens", input),
		zap.Int("output_tokens", output),
		zap.Float64("estimated_cost_usd", usd),
	)
	return usd
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.0-flash":      {Input: 0.10, Output: 0.40},
			"gemini-2.0-flash-lite": {Input: 0.075, Output: 0.30},
			"gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
		},
	}
}
