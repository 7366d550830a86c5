package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-processor/internal/chunker"
	"document-processor/internal/llmservice"
	"document-processor/internal/llmservice/llmtest"
	"document-processor/internal/models"
	"document-processor/internal/pricing"
	"document-processor/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *state.Store
	path  string
}

func newFixture(t *testing.T, body string) fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "states"), pricing.Default())
	require.NoError(t, err)
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return fixture{store: store, path: path}
}

func textChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{Index: i, Kind: models.ChunkText, Text: strings.Repeat("t", 10), EstimatedTokens: 5}
	}
	return chunks
}

func TestRun_CompletesAndAccountsCost(t *testing.T) {
	f := newFixture(t, "content")
	chunks := textChunks(4)
	st, _, err := f.store.Initialize(f.path, "gpt-4o-mini", chunks)
	require.NoError(t, err)

	fake := llmtest.New()
	outcome, err := NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, &Pause{}, RunOptions{MaxOutputTokens: 200})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	assert.Equal(t, 4, st.ProcessedChunks)
	require.Len(t, st.Results, 4)
	per, err := pricing.Default().EstimateCost("gpt-4o-mini", 100, 50)
	require.NoError(t, err)
	assert.InDelta(t, 4*per, st.TotalCost, 1e-12)
	for i, r := range st.Results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.Equal(t, "gpt-4o-mini", r.Model)
	}

	reqs := fake.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, models.DefaultSystemPrompt, reqs[0].SystemPrompt)
	assert.Equal(t, 200, reqs[0].MaxOutputTokens)

	loaded, err := f.store.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, st.Results, loaded.Results)
}

func TestRun_PauseAndResume(t *testing.T) {
	f := newFixture(t, "ten chunks")
	chunks := textChunks(10)
	st, _, err := f.store.Initialize(f.path, "gpt-4o", chunks)
	require.NoError(t, err)

	pause := &Pause{}
	first := llmtest.New()
	first.OnCall = func(n int, _ llmservice.Request) {
		if n == 2 {
			pause.Request()
		}
	}

	outcome, err := NewEngine(first, f.store, 10).Run(context.Background(), chunks, st, pause, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, outcome)
	assert.Equal(t, 3, first.Calls())

	saved, err := f.store.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.ProcessedChunks)
	require.Len(t, saved.Results, 3)
	before := append([]models.ChunkResult(nil), saved.Results...)

	second := llmtest.New()
	resumed, wasResumed, err := f.store.Initialize(f.path, "gpt-4o", chunks)
	require.NoError(t, err)
	require.True(t, wasResumed)

	outcome, err = NewEngine(second, f.store, 10).Run(context.Background(), chunks, resumed, &Pause{}, RunOptions{PromptTemplate: "{chunk_text}"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	assert.Equal(t, 7, second.Calls())
	assert.Equal(t, 10, resumed.ProcessedChunks)
	assert.Equal(t, before, resumed.Results[:3])
	for i, r := range resumed.Results {
		assert.Equal(t, i, r.ChunkIndex)
	}
	assert.GreaterOrEqual(t, resumed.TotalCost, saved.TotalCost)
}

func TestRun_CheckpointsEveryTenChunks(t *testing.T) {
	f := newFixture(t, "twenty five chunks")
	chunks := textChunks(25)
	st, _, err := f.store.Initialize(f.path, "gpt-4o-mini", chunks)
	require.NoError(t, err)

	onDisk := make([]int, 0, len(chunks))
	fake := llmtest.New()
	fake.OnCall = func(int, llmservice.Request) {
		saved, err := f.store.Load(f.path)
		require.NoError(t, err)
		onDisk = append(onDisk, saved.ProcessedChunks)
	}

	outcome, err := NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, &Pause{}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	require.Len(t, onDisk, 25)
	for n, got := range onDisk {
		assert.Equal(t, n/10*10, got, "saved progress during call %d", n)
	}

	saved, err := f.store.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, 25, saved.ProcessedChunks)
	assert.Len(t, saved.Results, 25)
}

func TestRun_CancelledContextPauses(t *testing.T) {
	f := newFixture(t, "x")
	chunks := textChunks(3)
	st, _, err := f.store.Initialize(f.path, "gpt-4o", chunks)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	fake := llmtest.New()
	fake.OnCall = func(int, llmservice.Request) { cancel() }

	outcome, err := NewEngine(fake, f.store, 10).Run(ctx, chunks, st, nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, outcome)
	assert.Equal(t, 1, st.ProcessedChunks)
}

func TestRun_LLMErrorCheckpoints(t *testing.T) {
	f := newFixture(t, "failing")
	chunks := textChunks(5)
	st, _, err := f.store.Initialize(f.path, "claude-haiku-4", chunks)
	require.NoError(t, err)

	fake := llmtest.New()
	fake.FailOn = 2
	_, err = NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, &Pause{}, RunOptions{})
	assert.ErrorIs(t, err, llmservice.ErrLLMCall)

	saved, err := f.store.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.ProcessedChunks)
	assert.Len(t, saved.Results, 2)
}

func TestRun_UnknownModelBeforeAnyCall(t *testing.T) {
	f := newFixture(t, "x")
	chunks := textChunks(2)
	st, _, err := f.store.Initialize(f.path, "gpt-4o", chunks)
	require.NoError(t, err)

	fake := llmtest.New()
	_, err = NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, nil, RunOptions{Model: "gpt-2"})
	assert.ErrorIs(t, err, pricing.ErrUnknownModel)
	assert.Zero(t, fake.Calls())
}

func TestRun_ChunkCountMismatch(t *testing.T) {
	f := newFixture(t, "x")
	st, _, err := f.store.Initialize(f.path, "gpt-4o", textChunks(2))
	require.NoError(t, err)

	_, err = NewEngine(llmtest.New(), f.store, 10).Run(context.Background(), textChunks(3), st, nil, RunOptions{})
	assert.Error(t, err)
}

func TestRun_ModelChangeKeepsEarlierCosts(t *testing.T) {
	f := newFixture(t, "switch")
	chunks := textChunks(2)
	st, _, err := f.store.Initialize(f.path, "claude-opus-4", chunks)
	require.NoError(t, err)

	pause := &Pause{}
	fake := llmtest.New()
	fake.OnCall = func(int, llmservice.Request) { pause.Request() }
	_, err = NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, pause, RunOptions{})
	require.NoError(t, err)
	opusCost := st.Results[0].Cost

	_, err = NewEngine(llmtest.New(), f.store, 10).Run(context.Background(), chunks, st, &Pause{}, RunOptions{Model: "gpt-4o-mini"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", st.CurrentModel)
	assert.Equal(t, "claude-opus-4", st.Results[0].Model)
	assert.Equal(t, opusCost, st.Results[0].Cost)
	assert.Equal(t, "gpt-4o-mini", st.Results[1].Model)
	assert.Less(t, st.Results[1].Cost, opusCost)
}

func TestRun_EstimatesWithoutUsage(t *testing.T) {
	f := newFixture(t, "x")
	chunks := textChunks(1)
	st, _, err := f.store.Initialize(f.path, "gpt-4o", chunks)
	require.NoError(t, err)

	fake := llmtest.New()
	fake.NoUsage = true
	_, err = NewEngine(fake, f.store, 10).Run(context.Background(), chunks, st, nil, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, st.Results[0].InputTokens)
	assert.Equal(t, len("response 0")/2, st.Results[0].OutputTokens)
}

func TestPipeline_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "states"), nil)
	require.NoError(t, err)
	cache, err := chunker.NewCache(filepath.Join(dir, "chunks"), 4)
	require.NoError(t, err)
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	p := NewPipeline(cache, store, 10)
	chunks, err := p.Prepare(context.Background(), path, ChunkOptions{ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	st, _, err := p.Start(path, "gpt-4o", chunks)
	require.NoError(t, err)
	assert.Zero(t, st.TotalChunks)

	fake := llmtest.New()
	outcome, err := p.Run(context.Background(), fake, chunks, st, &Pause{}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Zero(t, st.ProcessedChunks)
	assert.Zero(t, st.TotalCost)
	assert.Zero(t, fake.Calls())
}

func TestPipeline_ExactChunkSize(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "states"), nil)
	require.NoError(t, err)
	cache, err := chunker.NewCache(filepath.Join(dir, "chunks"), 4)
	require.NoError(t, err)
	path := filepath.Join(dir, "exact.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("z", 500)), 0o644))

	p := NewPipeline(cache, store, 10)
	chunks, err := p.Prepare(context.Background(), path, ChunkOptions{ChunkSize: 500, Overlap: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].SourcePosition)

	st, _, err := p.Start(path, "gpt-4o-mini", chunks)
	require.NoError(t, err)
	est, err := p.Estimate(chunks, st, "gpt-4o-mini", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, est.RemainingChunks)
	assert.Equal(t, 250, est.InputTokens)
	assert.Equal(t, 1000, est.OutputTokens)

	// second prepare comes from the cache file
	again, err := p.Prepare(context.Background(), path, ChunkOptions{ChunkSize: 500, Overlap: 50})
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
	assert.FileExists(t, filepath.Join(dir, "chunks", st.FileHash+"_chunks.json"))
}

func TestPipeline_Unsupported(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "states"), nil)
	require.NoError(t, err)
	cache, err := chunker.NewCache(filepath.Join(dir, "chunks"), 1)
	require.NoError(t, err)

	_, err = NewPipeline(cache, store, 10).Prepare(context.Background(), "file.exe", ChunkOptions{ChunkSize: 10})
	assert.Error(t, err)
}

func TestRenderPrompt(t *testing.T) {
	text := models.Chunk{Kind: models.ChunkText, Text: "BODY"}
	assert.Equal(t, "Summarize: BODY", RenderPrompt("Summarize: {chunk_text}", text))
	assert.Equal(t, "Summarize this.\n\nBODY", RenderPrompt("Summarize this.", text))
	assert.Contains(t, RenderPrompt("", text), "BODY")

	img := models.Chunk{Kind: models.ChunkImage, Images: []models.Attachment{{Data: []byte{1}}}}
	assert.Equal(t, models.DefaultImagePrompt, RenderPrompt("Summarize: {chunk_text}", img))

	msg := chunkMessage("{chunk_text}", img)
	require.Len(t, msg.Images, 1)
	assert.Equal(t, models.DefaultMediaType, msg.Images[0].MediaType)
}
