package processor

import (
	"context"
	"fmt"
	"path/filepath"

	"document-processor/internal/chunker"
	"document-processor/internal/llmservice"
	"document-processor/internal/models"
	"document-processor/internal/parser"
	"document-processor/internal/state"

	"github.com/rs/zerolog/log"
)

type ChunkOptions struct {
	ChunkSize      int
	Overlap        int
	OptimizeImages bool
	MaxImageSize   int
}

func (o ChunkOptions) chunker() chunker.Options {
	return chunker.Options{ChunkSize: o.ChunkSize, Overlap: o.Overlap}
}

// Pipeline wires extraction, chunking, state and the engine together. Front
// ends call its steps one by one so they can confirm costs between them.
type Pipeline struct {
	cache           *chunker.Cache
	store           *state.Store
	checkpointEvery int
}

func NewPipeline(cache *chunker.Cache, store *state.Store, checkpointEvery int) *Pipeline {
	return &Pipeline{cache: cache, store: store, checkpointEvery: checkpointEvery}
}

func (p *Pipeline) Store() *state.Store {
	return p.store
}

// Prepare returns the chunks for path, from the cache when the same content
// was chunked before.
func (p *Pipeline) Prepare(ctx context.Context, path string, opts ChunkOptions) ([]models.Chunk, error) {
	if !parser.Supported(path) {
		return nil, fmt.Errorf("%w: %q", parser.ErrUnsupportedFormat, filepath.Ext(path))
	}
	copts := opts.chunker()
	if err := copts.Validate(); err != nil {
		return nil, err
	}

	hash, err := state.HashFile(path)
	if err != nil {
		return nil, err
	}

	chunks, cached, err := p.cache.GetOrBuild(hash, copts, func() ([]models.Chunk, error) {
		ext := parser.New(parser.ImageOptions{Optimize: opts.OptimizeImages, MaxSize: opts.MaxImageSize})
		units, err := ext.Extract(ctx, path)
		if err != nil {
			return nil, err
		}
		return chunker.Build(units, copts)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", filepath.Base(path)).
		Int("chunks", len(chunks)).
		Bool("cached", cached).
		Msg("Chunks ready")
	return chunks, nil
}

// Start loads or creates the processing state for path.
func (p *Pipeline) Start(path, model string, chunks []models.Chunk) (*models.ProcessingState, bool, error) {
	return p.store.Initialize(path, model, chunks)
}

// Estimate projects the cost of the chunks st has not processed yet.
func (p *Pipeline) Estimate(chunks []models.Chunk, st *models.ProcessingState, model string, outputPerChunk int) (*state.CostEstimate, error) {
	return p.store.EstimateRemainingCost(chunks, st.ProcessedChunks, model, outputPerChunk)
}

// Run processes the remaining chunks with client.
func (p *Pipeline) Run(ctx context.Context, client llmservice.Client, chunks []models.Chunk, st *models.ProcessingState, pause *Pause, opts RunOptions) (Outcome, error) {
	return NewEngine(client, p.store, p.checkpointEvery).Run(ctx, chunks, st, pause, opts)
}
