package state

import (
	"document-processor/internal/models"
	"document-processor/internal/pricing"
)

type CostEstimate struct {
	Model           string              `json:"model"`
	RemainingChunks int                 `json:"remaining_chunks"`
	InputTokens     int                 `json:"input_tokens"`
	OutputTokens    int                 `json:"output_tokens"`
	EstimatedCost   float64             `json:"estimated_cost"`
	ModelComparison []pricing.ModelCost `json:"model_comparison"`
	Cheapest        pricing.ModelCost   `json:"cheapest"`
	// what switching to Cheapest would save; zero when model is already cheapest
	Savings float64 `json:"savings"`
}

// EstimateRemainingCost projects the cost of chunks[start:] using the
// heuristic token counts and outputPerChunk tokens of output per chunk.
func (s *Store) EstimateRemainingCost(chunks []models.Chunk, start int, model string, outputPerChunk int) (*CostEstimate, error) {
	start = max(0, min(start, len(chunks)))
	remaining := chunks[start:]

	input := 0
	for _, c := range remaining {
		input += c.EstimatedTokens
	}
	output := len(remaining) * outputPerChunk

	cost, err := s.pricing.EstimateCost(model, input, output)
	if err != nil {
		return nil, err
	}
	cheapest := s.pricing.Cheapest(input, output)

	return &CostEstimate{
		Model:           model,
		RemainingChunks: len(remaining),
		InputTokens:     input,
		OutputTokens:    output,
		EstimatedCost:   cost,
		ModelComparison: s.pricing.CompareModels(input, output),
		Cheapest:        cheapest,
		Savings:         max(0, cost-cheapest.Cost),
	}, nil
}
