package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// AnthropicClient talks to the Anthropic Messages API through langchaingo.
type AnthropicClient struct {
	llm      llms.Model
	modelIDs map[string]string
}

func NewAnthropicClient(opts Options) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", ErrMissingCredentials)
	}

	anthropicOpts := []anthropic.Option{
		anthropic.WithToken(strings.TrimPrefix(opts.APIKey, "Bearer ")),
	}
	if opts.BaseURL != "" {
		anthropicOpts = append(anthropicOpts, anthropic.WithBaseURL(opts.BaseURL))
	}
	if opts.DefaultModel != "" {
		anthropicOpts = append(anthropicOpts, anthropic.WithModel(resolveModel(opts.ModelIDs, opts.DefaultModel)))
	}

	llm, err := anthropic.New(anthropicOpts...)
	if err != nil {
		return nil, fmt.Errorf("init anthropic client: %w", err)
	}
	return &AnthropicClient{llm: llm, modelIDs: opts.ModelIDs}, nil
}

func (c *AnthropicClient) Provider() string { return ProviderAnthropic }

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return completeWithLangchain(ctx, c.llm, ProviderAnthropic, resolveModel(c.modelIDs, req.Model), req)
}

// completeWithLangchain runs req against any langchaingo model.
func completeWithLangchain(ctx context.Context, llm llms.Model, provider, modelID string, req Request) (*Response, error) {
	callOpts := []llms.CallOption{llms.WithModel(modelID)}
	if req.MaxOutputTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxOutputTokens))
	}

	log.Debug().Str("provider", provider).Str("model", modelID).Int("messages", len(req.Messages)).Msg("Generating content")
	resp, err := llm.GenerateContent(ctx, messageContent(req), callOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLLMCall, provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s: empty response", ErrLLMCall, provider)
	}

	in, out, ok := usageFromChoices(resp.Choices)
	return &Response{
		Text:          joinChoices(resp.Choices),
		InputTokens:   in,
		OutputTokens:  out,
		UsageReported: ok,
	}, nil
}
