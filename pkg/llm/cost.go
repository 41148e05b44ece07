package llm

import "strings"

// Rate holds per-million-token USD prices for one model.
type Rate struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// DefaultRate is used for models absent from the pricing tables.
var DefaultRate = Rate{Input: 1.0, Output: 3.0}

// pricing maps provider name to model id to rate, in USD per million tokens.
var pricing = map[string]map[string]Rate{
	"anthropic": {
		"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
		"claude-3-sonnet-20240229":   {Input: 3.00, Output: 15.00},
		"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
		"claude-3-opus-20240229":     {Input: 15.00, Output: 75.00},
	},
	"openai": {
		"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
		"gpt-4o":        {Input: 2.50, Output: 10.00},
		"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
		"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
	},
	"numih": {
		NumihDefaultModel: {Input: 0, Output: 0},
	},
}

// RateFor returns the pricing for a provider and model, falling back to
// DefaultRate for unknown combinations.
func RateFor(provider, model string) Rate {
	if models, ok := pricing[strings.ToLower(provider)]; ok {
		if rate, ok := models[model]; ok {
			return rate
		}
	}
	return DefaultRate
}

// EstimateCost returns the USD cost of a token usage for a provider's model.
func EstimateCost(provider, model string, tokensInput, tokensOutput int) float64 {
	rate := RateFor(provider, model)
	return float64(tokensInput)/1_000_000*rate.Input +
		float64(tokensOutput)/1_000_000*rate.Output
}

// DatasetCost breaks down the projected cost of a full generation run.
type DatasetCost struct {
	TotalCost         float64 `json:"total_cost"`
	InputCost         float64 `json:"input_cost"`
	OutputCost        float64 `json:"output_cost"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
}

// Average token counts observed per generated example.
const (
	AvgInputTokensPerExample  = 2000
	AvgOutputTokensPerExample = 500
)

// EstimateDatasetCost projects the cost of generating numExamples examples.
// Zero average token counts fall back to the observed defaults.
func EstimateDatasetCost(provider, model string, numExamples, avgInputTokens, avgOutputTokens int) DatasetCost {
	if avgInputTokens == 0 {
		avgInputTokens = AvgInputTokensPerExample
	}
	if avgOutputTokens == 0 {
		avgOutputTokens = AvgOutputTokensPerExample
	}

	totalInput := numExamples * avgInputTokens
	totalOutput := numExamples * avgOutputTokens

	rate := RateFor(provider, model)
	inputCost := float64(totalInput) / 1_000_000 * rate.Input
	outputCost := float64(totalOutput) / 1_000_000 * rate.Output

	return DatasetCost{
		TotalCost:         inputCost + outputCost,
		InputCost:         inputCost,
		OutputCost:        outputCost,
		TotalInputTokens:  totalInput,
		TotalOutputTokens: totalOutput,
	}
}
