package pricing

import (
	"errors"
	"fmt"

	"document-processor/internal/config"
)

var ErrUnknownModel = errors.New("unknown model")

// Entry holds per-million-token prices in USD.
type Entry struct {
	Model                 string  `json:"model"`
	InputPricePerMillion  float64 `json:"input_price_per_million"`
	OutputPricePerMillion float64 `json:"output_price_per_million"`
}

type ModelCost struct {
	Model string  `json:"model"`
	Cost  float64 `json:"cost"`
}

// Table is an ordered, read-only price list. Safe for concurrent use after construction.
type Table struct {
	order   []string
	entries map[string]Entry
}

var defaultEntries = []Entry{
	{Model: "claude-sonnet-4-5", InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
	{Model: "claude-sonnet-4", InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
	{Model: "claude-opus-4", InputPricePerMillion: 15.00, OutputPricePerMillion: 75.00},
	{Model: "claude-haiku-4", InputPricePerMillion: 0.80, OutputPricePerMillion: 4.00},
	{Model: "gpt-4o", InputPricePerMillion: 2.50, OutputPricePerMillion: 10.00},
	{Model: "gpt-4o-mini", InputPricePerMillion: 0.15, OutputPricePerMillion: 0.60},
}

func Default() *Table {
	return New(defaultEntries)
}

// New builds a table. A later entry for the same model replaces the earlier
// one but keeps its original position.
func New(entries []Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, ok := t.entries[e.Model]; !ok {
			t.order = append(t.order, e.Model)
		}
		t.entries[e.Model] = e
	}
	return t
}

// FromConfig returns the default table extended with configured entries.
func FromConfig(extra []config.PricingConfig) *Table {
	entries := append([]Entry(nil), defaultEntries...)
	for _, p := range extra {
		entries = append(entries, Entry{
			Model:                 p.Model,
			InputPricePerMillion:  p.Input,
			OutputPricePerMillion: p.Output,
		})
	}
	return New(entries)
}

func (t *Table) Has(model string) bool {
	_, ok := t.entries[model]
	return ok
}

func (t *Table) Get(model string) (Entry, error) {
	e, ok := t.entries[model]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return e, nil
}

func (t *Table) Models() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, m := range t.order {
		out = append(out, t.entries[m])
	}
	return out
}

func (t *Table) EstimateCost(model string, inputTokens, outputTokens int) (float64, error) {
	e, err := t.Get(model)
	if err != nil {
		return 0, err
	}
	return cost(e, inputTokens, outputTokens), nil
}

// CompareModels prices the same workload on every model, in table order.
func (t *Table) CompareModels(inputTokens, outputTokens int) []ModelCost {
	out := make([]ModelCost, 0, len(t.order))
	for _, m := range t.order {
		out = append(out, ModelCost{Model: m, Cost: cost(t.entries[m], inputTokens, outputTokens)})
	}
	return out
}

// Cheapest returns the lowest-cost model; ties go to the earlier entry.
func (t *Table) Cheapest(inputTokens, outputTokens int) ModelCost {
	var best ModelCost
	for i, mc := range t.CompareModels(inputTokens, outputTokens) {
		if i == 0 || mc.Cost < best.Cost {
			best = mc
		}
	}
	return best
}

func cost(e Entry, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*e.InputPricePerMillion +
		float64(outputTokens)/1_000_000*e.OutputPricePerMillion
}
