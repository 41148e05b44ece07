package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateFor(t *testing.T) {
	rate := RateFor("anthropic", "claude-3-haiku-20240307")
	assert.Equal(t, 0.25, rate.Input)
	assert.Equal(t, 1.25, rate.Output)

	rate = RateFor("openai", "gpt-4o")
	assert.Equal(t, 2.50, rate.Input)
	assert.Equal(t, 10.00, rate.Output)

	// Provider casing does not change the lookup.
	rate = RateFor("Anthropic", "claude-3-haiku-20240307")
	assert.Equal(t, 0.25, rate.Input)
	assert.Equal(t, 1.25, rate.Output)

	// Self-hosted generation is free.
	rate = RateFor("numih", NumihDefaultModel)
	assert.Zero(t, rate.Input)
	assert.Zero(t, rate.Output)

	assert.Equal(t, DefaultRate, RateFor("anthropic", "claude-99"))
	assert.Equal(t, DefaultRate, RateFor("unknown", "model"))
}

func TestEstimateCost(t *testing.T) {
	// 1M input + 1M output on haiku.
	cost := EstimateCost("anthropic", "claude-3-haiku-20240307", 1_000_000, 1_000_000)
	assert.InDelta(t, 1.50, cost, 1e-9)

	assert.Zero(t, EstimateCost("numih", NumihDefaultModel, 1_000_000, 1_000_000))
}

func TestEstimateDatasetCost(t *testing.T) {
	cost := EstimateDatasetCost("openai", "gpt-4o-mini", 100, 0, 0)

	assert.Equal(t, 100*AvgInputTokensPerExample, cost.TotalInputTokens)
	assert.Equal(t, 100*AvgOutputTokensPerExample, cost.TotalOutputTokens)
	assert.InDelta(t, 0.03, cost.InputCost, 1e-9)
	assert.InDelta(t, 0.03, cost.OutputCost, 1e-9)
	assert.InDelta(t, 0.06, cost.TotalCost, 1e-9)
}

func TestEstimateDatasetCost_ExplicitAverages(t *testing.T) {
	cost := EstimateDatasetCost("anthropic", "claude-3-haiku-20240307", 10, 1000, 200)

	assert.Equal(t, 10_000, cost.TotalInputTokens)
	assert.Equal(t, 2_000, cost.TotalOutputTokens)
	assert.InDelta(t, 0.0025+0.0025, cost.TotalCost, 1e-9)
}
