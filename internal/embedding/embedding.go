package embedding

import (
	"context"
	"fmt"
	"strings"

	"document-processor/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// MaxChars bounds the text embedded for one result.
const MaxChars = 4000

// Embedder turns text into a vector. *embeddings.EmbedderImpl satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds an embedder for an ollama or openai-compatible target.
func NewEmbedder(target config.LLMTarget) (*embeddings.EmbedderImpl, error) {
	log.Debug().
		Str("provider", target.Provider).
		Str("base_url", target.BaseURL).
		Str("model", target.Model).
		Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch strings.ToLower(target.Provider) {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(target.Model)}
		if target.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(target.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: %w", err)
		}
		client = llm
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(target.Key, "Bearer ")),
			openai.WithEmbeddingModel(target.Model),
		}
		if target.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(target.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", target.Provider)
	}

	return embeddings.NewEmbedder(client)
}

// GenerateEmbedding embeds the leading MaxChars of content. Empty content
// yields a nil vector.
func GenerateEmbedding(ctx context.Context, embedder Embedder, content string) ([]float32, error) {
	chunks := chunkContent(content, MaxChars)
	if len(chunks) == 0 {
		return nil, nil
	}
	return embedder.EmbedQuery(ctx, chunks[0])
}

// chunkContent splits content on spaces into pieces of at most maxChars bytes.
// A single word longer than maxChars becomes its own piece.
func chunkContent(content string, maxChars int) []string {
	var chunks []string
	var chunk strings.Builder
	for _, word := range strings.Fields(content) {
		if chunk.Len() > 0 && chunk.Len()+len(word)+1 > maxChars {
			chunks = append(chunks, chunk.String())
			chunk.Reset()
		}
		if chunk.Len() > 0 {
			chunk.WriteByte(' ')
		}
		chunk.WriteString(word)
	}
	if chunk.Len() > 0 {
		chunks = append(chunks, chunk.String())
	}
	return chunks
}
