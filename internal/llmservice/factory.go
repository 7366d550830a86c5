package llmservice

import (
	"fmt"
	"strings"

	"document-processor/internal/config"
)

// Options configure a provider client.
type Options struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	// pricing model name -> provider model id
	ModelIDs map[string]string
	Retry    RetryConfig
}

// New builds the client for provider. Providers other than ollama need an API key.
func New(provider string, opts Options) (Client, error) {
	var (
		client Client
		err    error
	)
	switch strings.ToLower(provider) {
	case ProviderAnthropic:
		client, err = NewAnthropicClient(opts)
	case ProviderOpenAI:
		client, err = NewOpenAIClient(opts)
	case ProviderOllama:
		client, err = NewOllamaClient(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		return nil, err
	}
	if opts.Retry.MaxRetries > 1 {
		client = WithRetry(client, opts.Retry)
	}
	return client, nil
}

// OptionsFromConfig fills Options for provider from cfg. A non-empty apiKey
// overrides the configured one.
func OptionsFromConfig(cfg *config.Config, provider, model, apiKey string) Options {
	opts := Options{
		APIKey:       cfg.APIKey(provider),
		DefaultModel: model,
		ModelIDs:     cfg.LLM.ModelIDs,
		Retry: RetryConfig{
			MaxRetries: cfg.LLM.Retry.MaxRetries,
			BaseDelay:  cfg.LLM.Retry.BaseDelay,
			MaxDelay:   cfg.LLM.Retry.MaxDelay,
			Multiplier: 2,
		},
	}
	switch provider {
	case ProviderAnthropic:
		opts.BaseURL = cfg.LLM.Anthropic.BaseURL
	case ProviderOpenAI:
		opts.BaseURL = cfg.LLM.OpenAI.BaseURL
	case ProviderOllama:
		opts.BaseURL = cfg.LLM.Ollama.BaseURL
	}
	if apiKey != "" {
		opts.APIKey = apiKey
	}
	return opts
}

// ResolveProvider returns the explicit provider, else the configured one when
// the model matches it, else the provider inferred from the model name.
func ResolveProvider(explicit, configured, model string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	inferred := ProviderForModel(model)
	if configured == ProviderOllama || configured == inferred {
		return configured
	}
	return inferred
}
