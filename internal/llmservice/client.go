package llmservice

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrLLMCall            = errors.New("llm call failed")
	ErrMissingCredentials = errors.New("missing api credentials")
	ErrUnknownProvider    = errors.New("unknown llm provider")
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Image is an encoded image attached to a message.
type Image struct {
	Data      []byte
	MediaType string
}

// Message is one user turn; it may carry text, images or both.
type Message struct {
	Text   string
	Images []Image
}

type Request struct {
	Model           string
	SystemPrompt    string
	Messages        []Message
	MaxOutputTokens int
}

// Response carries the generated text and, when the provider reports it,
// the billed token usage.
type Response struct {
	Text          string
	InputTokens   int
	OutputTokens  int
	UsageReported bool
}

// Client is the capability every provider variant implements.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

// ProviderForModel picks a provider from a model name when none is configured.
func ProviderForModel(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// NeedsCredentials reports whether provider requires an API key.
func NeedsCredentials(provider string) bool {
	return provider != ProviderOllama
}

// resolveModel maps a pricing key to the provider's model id.
func resolveModel(ids map[string]string, model string) string {
	if id, ok := ids[model]; ok && id != "" {
		return id
	}
	return model
}
