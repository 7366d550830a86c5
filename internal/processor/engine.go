package processor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"document-processor/internal/llmservice"
	"document-processor/internal/models"
	"document-processor/internal/pricing"
	"document-processor/internal/state"

	"github.com/rs/zerolog/log"
)

const DefaultCheckpointEvery = 10

// Pause is a cooperative stop request, observed between chunks.
type Pause struct {
	requested atomic.Bool
}

func (p *Pause) Request() { p.requested.Store(true) }

func (p *Pause) Requested() bool { return p != nil && p.requested.Load() }

// Reset clears a previous request so the token can be reused on resume.
func (p *Pause) Reset() { p.requested.Store(false) }

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
)

// Progress is reported after each processed chunk.
type Progress struct {
	Processed int
	Total     int
	TotalCost float64
}

type RunOptions struct {
	SystemPrompt    string
	PromptTemplate  string
	Model           string // defaults to the state's current model
	MaxOutputTokens int
	OnProgress      func(Progress)
}

// Engine submits chunks to the LLM one at a time and records results in the state.
type Engine struct {
	client          llmservice.Client
	store           *state.Store
	pricing         *pricing.Table
	checkpointEvery int
}

func NewEngine(client llmservice.Client, store *state.Store, checkpointEvery int) *Engine {
	if checkpointEvery < 1 {
		checkpointEvery = DefaultCheckpointEvery
	}
	return &Engine{
		client:          client,
		store:           store,
		pricing:         store.Pricing(),
		checkpointEvery: checkpointEvery,
	}
}

// Run processes chunks[st.ProcessedChunks:]. It stops with OutcomePaused when
// pause is requested or ctx is done; an in-flight call always finishes first.
// On an LLM failure the state is saved and an ErrLLMCall error is returned.
func (e *Engine) Run(ctx context.Context, chunks []models.Chunk, st *models.ProcessingState, pause *Pause, opts RunOptions) (Outcome, error) {
	model := opts.Model
	if model == "" {
		model = st.CurrentModel
	}
	if !e.pricing.Has(model) {
		return "", fmt.Errorf("%w: %q", pricing.ErrUnknownModel, model)
	}
	if len(chunks) != st.TotalChunks {
		return "", fmt.Errorf("state expects %d chunks, got %d", st.TotalChunks, len(chunks))
	}
	if st.CurrentModel != model {
		if err := e.store.ChangeModel(st, model); err != nil {
			return "", err
		}
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = models.DefaultSystemPrompt
	}

	log.Info().
		Str("file", st.FilePath).
		Str("model", model).
		Int("start", st.ProcessedChunks).
		Int("total", st.TotalChunks).
		Msg("Processing chunks")

	// calls run to completion even if ctx is cancelled mid-call
	callCtx := context.WithoutCancel(ctx)

	for i := st.ProcessedChunks; i < len(chunks); i++ {
		if pause.Requested() || ctx.Err() != nil {
			if err := e.store.Save(st); err != nil {
				return "", err
			}
			log.Info().Int("processed", st.ProcessedChunks).Int("total", st.TotalChunks).Msg("Processing paused")
			return OutcomePaused, nil
		}

		chunk := chunks[i]
		resp, err := e.client.Complete(callCtx, llmservice.Request{
			Model:           model,
			SystemPrompt:    systemPrompt,
			Messages:        []llmservice.Message{chunkMessage(opts.PromptTemplate, chunk)},
			MaxOutputTokens: opts.MaxOutputTokens,
		})
		if err != nil {
			if saveErr := e.store.Save(st); saveErr != nil {
				log.Error().Err(saveErr).Msg("Failed to save state after LLM error")
			}
			if !errors.Is(err, llmservice.ErrLLMCall) {
				err = fmt.Errorf("%w: %w", llmservice.ErrLLMCall, err)
			}
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}

		in, out := resp.InputTokens, resp.OutputTokens
		if !resp.UsageReported {
			in = chunk.EstimatedTokens
			out = utf8.RuneCountInString(resp.Text) / models.CharsPerToken
		}
		cost, err := e.pricing.EstimateCost(model, in, out)
		if err != nil {
			return "", err
		}

		st.Results = append(st.Results, models.ChunkResult{
			ChunkIndex:   i,
			Response:     resp.Text,
			InputTokens:  in,
			OutputTokens: out,
			Cost:         cost,
			Model:        model,
			CompletedAt:  time.Now().UTC(),
		})
		st.ProcessedChunks++
		st.TotalCost += cost

		log.Debug().
			Int("chunk", i).
			Int("input_tokens", in).
			Int("output_tokens", out).
			Float64("cost", cost).
			Msg("Chunk processed")

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Processed: st.ProcessedChunks, Total: st.TotalChunks, TotalCost: st.TotalCost})
		}

		if st.ProcessedChunks%e.checkpointEvery == 0 {
			if err := e.store.Save(st); err != nil {
				return "", err
			}
		}
	}

	if err := e.store.Save(st); err != nil {
		return "", err
	}
	log.Info().
		Int("processed", st.ProcessedChunks).
		Float64("total_cost", st.TotalCost).
		Msg("Processing complete")
	return OutcomeCompleted, nil
}
