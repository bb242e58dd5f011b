package orchestrator

import "math"

// Rate is a provider's token pricing in USD per million tokens.
type Rate struct {
	InputPerM  float64
	OutputPerM float64
}

// PricingTable maps provider name to its rate. Lookups for unknown providers
// fall back to the openai row, which is also the fallback provider for
// unknown model prefixes.
type PricingTable map[string]Rate

// DefaultPricing returns the built-in per-provider rates. They approximate
// each vendor's small-model tier and exist to impute a cost when the vendor
// reports none; deployments override them through configuration.
func DefaultPricing() PricingTable {
	return PricingTable{
		"openai":    {InputPerM: 0.50, OutputPerM: 1.50},
		"anthropic": {InputPerM: 0.80, OutputPerM: 4.00},
		"google":    {InputPerM: 0.35, OutputPerM: 1.05},
		"groq":      {InputPerM: 0.10, OutputPerM: 0.30},
		"mistral":   {InputPerM: 0.20, OutputPerM: 0.60},
	}
}

// costOf imputes the USD cost of one call from its token counts, rounded to
// six decimals.
func (t PricingTable) costOf(provider string, inputTokens, outputTokens int) float64 {
	rate, ok := t[provider]
	if !ok {
		rate = t["openai"]
	}
	cost := float64(inputTokens)/1e6*rate.InputPerM + float64(outputTokens)/1e6*rate.OutputPerM
	return round6(cost)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
