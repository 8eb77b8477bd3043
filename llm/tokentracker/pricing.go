package tokentracker

// Pricing holds per-1M-token rates in CNY, matching the original
// deployment's cost table (§3).
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
	Provider   string
	ModelName  string
}

// DefaultPricingTable is keyed by ModelAlias (logical model name), not
// physical model, since cost accounting is per logical route.
func DefaultPricingTable() map[string]Pricing {
	return map[string]Pricing{
		"qwen":     {InputPerM: 0.4, OutputPerM: 1.2, Provider: "dashscope", ModelName: "qwen-plus-latest"},
		"deepseek": {InputPerM: 0.4, OutputPerM: 2.0, Provider: "dashscope", ModelName: "deepseek-v3.1"},
		"kimi":     {InputPerM: 2.0, OutputPerM: 6.0, Provider: "volcengine", ModelName: "moonshot-v1-32k"},
		"doubao":   {InputPerM: 0.8, OutputPerM: 2.0, Provider: "volcengine", ModelName: "doubao-pro-32k"},
	}
}

// fallbackPricing is used for an alias absent from the table, matching
// the original's "default to qwen-ish rates rather than reject" behavior.
var fallbackPricing = Pricing{InputPerM: 0.4, OutputPerM: 1.2, Provider: "dashscope", ModelName: "unknown"}

func (t *Tracker) priceFor(alias string) Pricing {
	if p, ok := t.pricing[alias]; ok {
		return p
	}
	return fallbackPricing
}

func computeCost(p Pricing, inputTokens, outputTokens int) (inputCost, outputCost, totalCost float64) {
	inputCost = float64(inputTokens) * p.InputPerM / 1_000_000
	outputCost = float64(outputTokens) * p.OutputPerM / 1_000_000
	totalCost = inputCost + outputCost
	return
}
