// Package cost prices model usage and enforces a per-run spending ceiling.
package cost

// Rates holds per-model pricing keyed by model ID, grouped by provider.
// Model IDs are looked up across every group.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Ollama    map[string]ModelRate `yaml:"ollama" mapstructure:"ollama"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Models missing
// from rates fall back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	merged := DefaultRates()
	merged.Anthropic = merge(merged.Anthropic, rates.Anthropic)
	merged.OpenAI = merge(merged.OpenAI, rates.OpenAI)
	merged.Ollama = merge(merged.Ollama, rates.Ollama)
	return &Calculator{rates: merged}
}

func merge(dst, src map[string]ModelRate) map[string]ModelRate {
	if dst == nil {
		dst = make(map[string]ModelRate, len(src))
	}
	for model, r := range src {
		dst[model] = r
	}
	return dst
}

func (c *Calculator) rate(model string) (ModelRate, bool) {
	for _, group := range []map[string]ModelRate{c.rates.Anthropic, c.rates.OpenAI, c.rates.Ollama} {
		if r, ok := group[model]; ok {
			return r, true
		}
	}
	return ModelRate{}, false
}

// Usage computes the cost of one call from its token usage.
func (c *Calculator) Usage(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rate(model)
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// WorstCase estimates the most a call can cost before it is sent. Input is
// priced at one token per byte, which over-counts for any tokenizer, and
// output at the full maxTokens.
func (c *Calculator) WorstCase(model string, inputBytes, maxTokens int) float64 {
	rate, ok := c.rate(model)
	if !ok {
		return 0
	}
	return (float64(inputBytes)/1e6)*rate.Input + (float64(maxTokens)/1e6)*rate.Output
}

// Known reports whether the calculator has a rate for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rate(model)
	return ok
}

// DefaultRates returns the default pricing rates. Ollama models run locally
// and have no default price.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o-mini": {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
			"gpt-4o":      {Input: 2.50, Output: 10.00, CacheReadMul: 0.5},
		},
		Ollama: map[string]ModelRate{},
	}
}
