package llmservice

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaClient calls a local Ollama server. It needs no credentials.
type OllamaClient struct {
	llm      llms.Model
	modelIDs map[string]string
}

func NewOllamaClient(opts Options) (*OllamaClient, error) {
	ollamaOpts := []ollama.Option{}
	if opts.BaseURL != "" {
		ollamaOpts = append(ollamaOpts, ollama.WithServerURL(opts.BaseURL))
	}
	if opts.DefaultModel != "" {
		ollamaOpts = append(ollamaOpts, ollama.WithModel(resolveModel(opts.ModelIDs, opts.DefaultModel)))
	}

	llm, err := ollama.New(ollamaOpts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	return &OllamaClient{llm: llm, modelIDs: opts.ModelIDs}, nil
}

func (c *OllamaClient) Provider() string { return ProviderOllama }

func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return completeWithLangchain(ctx, c.llm, ProviderOllama, resolveModel(c.modelIDs, req.Model), req)
}
