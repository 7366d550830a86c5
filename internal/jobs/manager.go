package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"document-processor/internal/chunker"
	"document-processor/internal/config"
	"document-processor/internal/helper"
	"document-processor/internal/llmservice"
	"document-processor/internal/models"
	"document-processor/internal/parser"
	"document-processor/internal/pricing"
	"document-processor/internal/processor"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// SubmitRequest describes one file to process. Empty fields take config
// defaults; a negative Chunk.Overlap takes the configured overlap.
type SubmitRequest struct {
	FilePath        string
	FileName        string
	Prompt          string
	SystemPrompt    string
	Model           string
	Provider        string
	APIKey          string
	Chunk           processor.ChunkOptions
	MaxOutputTokens int
}

type ClientFactory func(provider string, opts llmservice.Options) (llmservice.Client, error)

// Archiver stores the results of a completed state.
type Archiver interface {
	StoreResults(ctx context.Context, st *models.ProcessingState) error
}

// Indexer makes the results of a completed state searchable.
type Indexer interface {
	IndexResults(ctx context.Context, st *models.ProcessingState) error
}

// Deps are optional collaborators. A nil NewClient means llmservice.New.
type Deps struct {
	NewClient ClientFactory
	Archiver  Archiver
	Indexer   Indexer
}

// Manager runs jobs in the background, at most MaxConcurrentJobs at a time.
type Manager struct {
	cfg      *config.Config
	pipeline *processor.Pipeline
	registry *Registry
	sem      *semaphore.Weighted
	deps     Deps
	clients  sync.Map // job id -> llmservice.Client
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, pipeline *processor.Pipeline, registry *Registry, deps Deps) (*Manager, error) {
	if err := helper.CreateFolder(cfg.ResultsDir); err != nil {
		return nil, err
	}
	if deps.NewClient == nil {
		deps.NewClient = llmservice.New
	}
	limit := int64(cfg.Server.MaxConcurrentJobs)
	if limit < 1 {
		limit = 1
	}
	return &Manager{
		cfg:      cfg,
		pipeline: pipeline,
		registry: registry,
		sem:      semaphore.NewWeighted(limit),
		deps:     deps,
	}, nil
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Submit validates req, registers a queued job and starts it.
func (m *Manager) Submit(req SubmitRequest) (string, error) {
	req = m.withDefaults(req)

	client, err := m.newClient(req)
	if err != nil {
		return "", err
	}
	if !parser.Supported(req.FilePath) {
		return "", fmt.Errorf("%w: %q", parser.ErrUnsupportedFormat, filepath.Ext(req.FilePath))
	}
	chunkOpts := chunker.Options{ChunkSize: req.Chunk.ChunkSize, Overlap: req.Chunk.Overlap}
	if err := chunkOpts.Validate(); err != nil {
		return "", err
	}

	job, err := m.registry.Create(req)
	if err != nil {
		return "", err
	}
	m.clients.Store(job.ID, client)

	log.Info().
		Str("job_id", job.ID).
		Str("file", req.FileName).
		Str("model", req.Model).
		Str("provider", client.Provider()).
		Msg("Job submitted")

	m.launch(job)
	return job.ID, nil
}

func (m *Manager) withDefaults(req SubmitRequest) SubmitRequest {
	if req.Model == "" {
		req.Model = m.cfg.Processing.DefaultModel
	}
	if req.Prompt == "" {
		req.Prompt = m.cfg.Processing.PromptTemplate
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = m.cfg.Processing.SystemPrompt
	}
	if req.MaxOutputTokens <= 0 {
		req.MaxOutputTokens = m.cfg.Processing.MaxOutputTokens
	}
	if req.Chunk.ChunkSize <= 0 {
		req.Chunk.ChunkSize = m.cfg.Chunking.ChunkSize
	}
	if req.Chunk.Overlap < 0 {
		req.Chunk.Overlap = m.cfg.Chunking.ChunkOverlap
		// the configured overlap does not fit a smaller requested size
		if req.Chunk.Overlap >= req.Chunk.ChunkSize {
			req.Chunk.Overlap = 0
		}
	}
	if req.Chunk.MaxImageSize <= 0 {
		req.Chunk.MaxImageSize = m.cfg.Chunking.MaxImageSize
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(req.FilePath)
	}
	return req
}

// newClient checks credentials before the model so a missing key is
// reported first.
func (m *Manager) newClient(req SubmitRequest) (llmservice.Client, error) {
	provider := llmservice.ResolveProvider(req.Provider, m.cfg.LLM.Provider, req.Model)
	opts := llmservice.OptionsFromConfig(m.cfg, provider, req.Model, req.APIKey)
	if llmservice.NeedsCredentials(provider) && opts.APIKey == "" {
		return nil, fmt.Errorf("%w: provider %s", llmservice.ErrMissingCredentials, provider)
	}
	if !m.pipeline.Store().Pricing().Has(req.Model) {
		return nil, fmt.Errorf("%w: %q", pricing.ErrUnknownModel, req.Model)
	}
	return m.deps.NewClient(provider, opts)
}

func (m *Manager) launch(job *Job) {
	ctx, cancel := context.WithCancel(context.Background())

	job.mu.Lock()
	job.cancel = cancel
	job.cancelled = false
	job.pause.Reset()
	req, pause := job.req, job.pause
	job.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, job.ID, req, pause)
	}()
}

func (m *Manager) run(ctx context.Context, id string, req SubmitRequest, pause *processor.Pause) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.stopped(id)
		return
	}
	defer m.sem.Release(1)

	value, ok := m.clients.Load(id)
	if !ok {
		m.fail(id, errors.New("no client for job"))
		return
	}
	client := value.(llmservice.Client)

	m.setStatus(id, StatusPreprocessing, "Extracting content")
	chunks, err := m.pipeline.Prepare(ctx, req.FilePath, req.Chunk)
	if err != nil {
		m.fail(id, err)
		return
	}
	st, resumed, err := m.pipeline.Start(req.FilePath, req.Model, chunks)
	if err != nil {
		m.fail(id, err)
		return
	}

	m.setStatus(id, StatusEstimating, "Estimating cost")
	est, err := m.pipeline.Estimate(chunks, st, req.Model, req.MaxOutputTokens)
	if err != nil {
		m.fail(id, err)
		return
	}
	_ = m.registry.Update(id, func(j *Job) error {
		j.TotalChunks = st.TotalChunks
		j.ProcessedChunks = st.ProcessedChunks
		j.TotalCost = st.TotalCost
		j.EstimatedCost = st.TotalCost + est.EstimatedCost
		return nil
	})

	msg := fmt.Sprintf("Processing %d chunks", st.TotalChunks-st.ProcessedChunks)
	if resumed {
		msg = fmt.Sprintf("Resuming at chunk %d of %d", st.ProcessedChunks, st.TotalChunks)
	}
	m.setStatus(id, StatusProcessing, msg)

	outcome, err := m.pipeline.Run(ctx, client, chunks, st, pause, processor.RunOptions{
		SystemPrompt:    req.SystemPrompt,
		PromptTemplate:  req.Prompt,
		Model:           req.Model,
		MaxOutputTokens: req.MaxOutputTokens,
		OnProgress: func(p processor.Progress) {
			_ = m.registry.Update(id, func(j *Job) error {
				j.ProcessedChunks = p.Processed
				j.TotalCost = p.TotalCost
				j.Message = fmt.Sprintf("Processed %d of %d chunks", p.Processed, p.Total)
				return nil
			})
		},
	})
	if err != nil {
		m.fail(id, err)
		return
	}
	if outcome == processor.OutcomePaused {
		m.stopped(id)
		return
	}
	m.complete(ctx, id, st)
}

func (m *Manager) complete(ctx context.Context, id string, st *models.ProcessingState) {
	out := m.resultPath(id)
	if err := m.pipeline.Store().Export(st, out); err != nil {
		m.fail(id, err)
		return
	}

	// archive and index failures do not fail a finished job
	if m.deps.Archiver != nil {
		if err := m.deps.Archiver.StoreResults(ctx, st); err != nil {
			log.Error().Err(err).Str("job_id", id).Msg("Failed to archive results")
		}
	}
	if m.deps.Indexer != nil {
		if err := m.deps.Indexer.IndexResults(ctx, st); err != nil {
			log.Error().Err(err).Str("job_id", id).Msg("Failed to index results")
		}
	}

	_ = m.registry.Update(id, func(j *Job) error {
		j.Status = StatusCompleted
		j.Message = fmt.Sprintf("Completed %d chunks", st.ProcessedChunks)
		j.ProcessedChunks = st.ProcessedChunks
		j.TotalChunks = st.TotalChunks
		j.TotalCost = st.TotalCost
		j.Model = st.CurrentModel
		j.ResultPath = out
		return nil
	})
	log.Info().Str("job_id", id).Float64("total_cost", st.TotalCost).Str("output", out).Msg("Job completed")
}

func (m *Manager) resultPath(id string) string {
	return filepath.Join(m.cfg.ResultsDir, id+"_result.json")
}

func (m *Manager) setStatus(id string, status Status, msg string) {
	_ = m.registry.Update(id, func(j *Job) error {
		j.Status = status
		j.Message = msg
		return nil
	})
}

// stopped records a run that ended early, either by pause or cancel.
func (m *Manager) stopped(id string) {
	_ = m.registry.Update(id, func(j *Job) error {
		if j.cancelled {
			j.Status = StatusCancelled
			j.Message = "Cancelled"
		} else {
			j.Status = StatusPaused
			j.Message = fmt.Sprintf("Paused after %d of %d chunks", j.ProcessedChunks, j.TotalChunks)
		}
		return nil
	})
	log.Info().Str("job_id", id).Msg("Job stopped")
}

func (m *Manager) fail(id string, err error) {
	_ = m.registry.Update(id, func(j *Job) error {
		if j.cancelled {
			j.Status = StatusCancelled
			j.Message = "Cancelled"
			return nil
		}
		j.Status = StatusFailed
		j.Message = "Processing failed"
		j.Error = err.Error()
		return nil
	})
	log.Error().Err(err).Str("job_id", id).Msg("Job failed")
}

// Cancel stops an active job at the next chunk boundary, or marks a paused
// or failed job cancelled.
func (m *Manager) Cancel(id string) error {
	var cancel func()
	err := m.registry.Update(id, func(j *Job) error {
		switch {
		case j.Status.Active():
			j.cancelled = true
			j.Message = "Cancelling"
			cancel = j.cancel
		case j.Status == StatusPaused, j.Status == StatusFailed:
			j.Status = StatusCancelled
			j.Message = "Cancelled"
		default:
			return fmt.Errorf("%w: job is %s", ErrInvalidState, j.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Pause asks an active job to stop after its current chunk.
func (m *Manager) Pause(id string) error {
	return m.registry.Update(id, func(j *Job) error {
		if !j.Status.Active() {
			return fmt.Errorf("%w: job is %s", ErrInvalidState, j.Status)
		}
		j.pause.Request()
		j.Message = "Pausing"
		return nil
	})
}

// Resume restarts a paused or failed job from its last checkpoint.
func (m *Manager) Resume(id string) error {
	job, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	err = m.registry.Update(id, func(j *Job) error {
		if j.Status != StatusPaused && j.Status != StatusFailed {
			return fmt.Errorf("%w: job is %s", ErrInvalidState, j.Status)
		}
		j.Status = StatusQueued
		j.Message = "Queued for resume"
		j.Error = ""
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("job_id", id).Msg("Job resumed")
	m.launch(job)
	return nil
}

// ResultPath returns the export file of a completed job.
func (m *Manager) ResultPath(id string) (string, error) {
	snap, err := m.registry.Snapshot(id)
	if err != nil {
		return "", err
	}
	if snap.Status != StatusCompleted {
		return "", fmt.Errorf("%w: job is %s", ErrInvalidState, snap.Status)
	}
	return m.resultPath(id), nil
}

// Wait blocks until every started job has stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown pauses every active job and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, snap := range m.registry.List() {
		if snap.Status.Active() {
			_ = m.Pause(snap.JobID)
		}
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
