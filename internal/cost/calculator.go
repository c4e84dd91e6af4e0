// Package cost attributes LLM token usage to dollars.
package cost

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/model"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
	// PerRequest is a flat fee per call (search-grounded models).
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Rates maps model ids to pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// FromConfig returns DefaultRates overridden by configured pricing.
func FromConfig(cfg config.PricingConfig) *Calculator {
	rates := DefaultRates()
	for _, m := range []map[string]config.ModelPricing{cfg.Anthropic, cfg.Gemini} {
		for id, p := range m {
			rates[id] = ModelRate{Input: p.Input, Output: p.Output, CacheWriteMul: p.CacheWriteMul, CacheReadMul: p.CacheReadMul}
		}
	}
	return NewCalculator(rates)
}

// Usage computes the cost of u on modelID. Unknown models cost 0.
func (c *Calculator) Usage(modelID string, u model.TokenUsage) float64 {
	rate, ok := c.rates[modelID]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * rate.Input
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(u.CacheCreationTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost + float64(u.Calls)*rate.PerRequest
}

// Total sums the cost of per-model usage.
func (c *Calculator) Total(byModel map[string]model.TokenUsage) float64 {
	var total float64
	for id, u := range byModel {
		total += c.Usage(id, u)
	}
	return total
}

// LogAttribution logs token usage and estimated cost per model.
func (c *Calculator) LogAttribution(runID, phase string, byModel map[string]model.TokenUsage) {
	ids := make([]string, 0, len(byModel))
	for id := range byModel {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := byModel[id]
		zap.L().Info("cost attribution",
			zap.String("run_id", runID),
			zap.String("model", id),
			zap.String("phase", phase),
			zap.Int("calls", u.Calls),
			zap.Int("input_tokens", u.InputTokens),
			zap.Int("output_tokens", u.OutputTokens),
			zap.Int("cache_write_tokens", u.CacheCreationTokens),
			zap.Int("cache_read_tokens", u.CacheReadTokens),
			zap.Float64("estimated_cost_usd", c.Usage(id, u)),
		)
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"gemini-2.5-flash":           {Input: 0.30, Output: 2.50, CacheReadMul: 0.25},
		"gemini-2.5-pro":             {Input: 1.25, Output: 10.00, CacheReadMul: 0.25},
		"sonar":                      {Input: 1.00, Output: 1.00, PerRequest: 0.005},
		"sonar-pro":                  {Input: 3.00, Output: 15.00, PerRequest: 0.006},
	}
}
