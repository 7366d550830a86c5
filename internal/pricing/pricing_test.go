package pricing

import (
	"testing"

	"document-processor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost_ZeroTokensIsFree(t *testing.T) {
	table := Default()
	for _, e := range table.Models() {
		c, err := table.EstimateCost(e.Model, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, c, e.Model)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	_, err := Default().EstimateCost("gpt-2", 10, 10)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		in    int
		out   int
		want  float64
	}{
		{"gpt-4o-mini", 1_000_000, 100_000, 0.21},
		{"claude-opus-4", 1_000_000, 100_000, 22.5},
		{"claude-haiku-4", 1_000_000, 0, 0.80},
		{"gpt-4o", 0, 1_000_000, 10},
		{"claude-sonnet-4-5", 2_000, 1_000, 0.021},
	}
	table := Default()
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := table.EstimateCost(tt.model, tt.in, tt.out)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCompareModels(t *testing.T) {
	table := Default()
	got := table.CompareModels(1_000_000, 100_000)

	require.Len(t, got, len(table.Models()))
	assert.Equal(t, "claude-sonnet-4-5", got[0].Model)

	byModel := map[string]float64{}
	for _, mc := range got {
		byModel[mc.Model] = mc.Cost
	}
	assert.InDelta(t, 0.21, byModel["gpt-4o-mini"], 1e-9)
	assert.InDelta(t, 22.5, byModel["claude-opus-4"], 1e-9)
}

func TestCheapest(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", Default().Cheapest(1_000_000, 100_000).Model)

	// sonnet-4-5 and sonnet-4 tie; table order decides
	tie := New([]Entry{
		{Model: "claude-sonnet-4-5", InputPricePerMillion: 3, OutputPricePerMillion: 15},
		{Model: "claude-sonnet-4", InputPricePerMillion: 3, OutputPricePerMillion: 15},
	})
	assert.Equal(t, "claude-sonnet-4-5", tie.Cheapest(1000, 1000).Model)
}

func TestFromConfig_OverrideKeepsOrder(t *testing.T) {
	table := FromConfig([]config.PricingConfig{
		{Model: "gpt-4o", Input: 1, Output: 2},
		{Model: "local-llama", Input: 0, Output: 0},
	})

	models := table.Models()
	require.Len(t, models, 7)
	assert.Equal(t, "gpt-4o", models[4].Model)
	assert.Equal(t, 1.0, models[4].InputPricePerMillion)
	assert.Equal(t, "local-llama", models[6].Model)
	assert.True(t, table.Has("local-llama"))
	assert.Equal(t, "local-llama", table.Cheapest(1000, 1000).Model)
}
