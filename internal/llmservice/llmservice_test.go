package llmservice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"document-processor/internal/config"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestProviderForModel(t *testing.T) {
	tests := map[string]string{
		"claude-haiku-4":    ProviderAnthropic,
		"Claude-Opus-4":     ProviderAnthropic,
		"gpt-4o":            ProviderOpenAI,
		"gpt-4o-mini":       ProviderOpenAI,
		"some-other-model":  ProviderOpenAI,
		"claude-sonnet-4-5": ProviderAnthropic,
	}
	for model, want := range tests {
		assert.Equal(t, want, ProviderForModel(model), model)
	}
}

func TestResolveProvider(t *testing.T) {
	assert.Equal(t, "openai", ResolveProvider("OpenAI", "anthropic", "claude-opus-4"))
	assert.Equal(t, ProviderOpenAI, ResolveProvider("", ProviderAnthropic, "gpt-4o"))
	assert.Equal(t, ProviderAnthropic, ResolveProvider("", ProviderAnthropic, "claude-haiku-4"))
	assert.Equal(t, ProviderOllama, ResolveProvider("", ProviderOllama, "llama3"))
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, p := range []string{ProviderAnthropic, ProviderOpenAI} {
		_, err := New(p, Options{})
		assert.ErrorIs(t, err, ErrMissingCredentials, p)
	}
	assert.False(t, NeedsCredentials(ProviderOllama))
	assert.True(t, NeedsCredentials(ProviderOpenAI))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("bard", Options{APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNew_WrapsRetry(t *testing.T) {
	c, err := New(ProviderOpenAI, Options{APIKey: "sk-test", Retry: RetryConfig{MaxRetries: 3}})
	require.NoError(t, err)
	_, ok := c.(*retryClient)
	assert.True(t, ok)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	c, err = New(ProviderOllama, Options{})
	require.NoError(t, err)
	_, ok = c.(*OllamaClient)
	assert.True(t, ok)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.OpenAI.Key = "configured"
	cfg.LLM.OpenAI.BaseURL = "https://proxy.local/v1"
	cfg.LLM.ModelIDs = map[string]string{"gpt-4o": "gpt-4o-2024-08-06"}

	opts := OptionsFromConfig(cfg, ProviderOpenAI, "gpt-4o", "")
	assert.Equal(t, "configured", opts.APIKey)
	assert.Equal(t, "https://proxy.local/v1", opts.BaseURL)
	assert.Equal(t, "gpt-4o-2024-08-06", resolveModel(opts.ModelIDs, "gpt-4o"))
	assert.Equal(t, "gpt-4o-mini", resolveModel(opts.ModelIDs, "gpt-4o-mini"))

	opts = OptionsFromConfig(cfg, ProviderOpenAI, "gpt-4o", "override")
	assert.Equal(t, "override", opts.APIKey)
}

func TestUsageFromChoices(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		in, out int
		ok      bool
	}{
		{"anthropic", map[string]any{"InputTokens": 120, "OutputTokens": 30}, 120, 30, true},
		{"ollama", map[string]any{"PromptTokens": 7, "CompletionTokens": 9}, 7, 9, true},
		{"float values", map[string]any{"PromptTokens": float64(11), "CompletionTokens": float64(3)}, 11, 3, true},
		{"none", map[string]any{"StopReason": "end_turn"}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, ok := usageFromChoices([]*llms.ContentChoice{{Content: "x", GenerationInfo: tt.info}})
			assert.Equal(t, tt.in, in)
			assert.Equal(t, tt.out, out)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMessageContent(t *testing.T) {
	msgs := messageContent(Request{
		SystemPrompt: "be brief",
		Messages: []Message{{
			Text:   "describe",
			Images: []Image{{Data: []byte{1, 2}, MediaType: "image/png"}},
		}},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 2)
	img, ok := msgs[1].Parts[0].(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, llms.TextContent{Text: "describe"}, msgs[1].Parts[1])
}

type stubCompleter struct {
	got  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestOpenAIClient_Complete(t *testing.T) {
	stub := &stubCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "summary"}}},
		Usage:   openai.Usage{PromptTokens: 40, CompletionTokens: 8, TotalTokens: 48},
	}}
	c := &OpenAIClient{client: stub, modelIDs: map[string]string{"gpt-4o": "gpt-4o-2024-08-06"}}

	resp, err := c.Complete(context.Background(), Request{
		Model:           "gpt-4o",
		SystemPrompt:    "sys",
		MaxOutputTokens: 500,
		Messages: []Message{
			{Text: "plain"},
			{Text: "with image", Images: []Image{{Data: []byte("abc"), MediaType: "image/jpeg"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "summary", resp.Text)
	assert.Equal(t, 40, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
	assert.True(t, resp.UsageReported)

	assert.Equal(t, "gpt-4o-2024-08-06", stub.got.Model)
	assert.Equal(t, 500, stub.got.MaxTokens)
	require.Len(t, stub.got.Messages, 3)
	assert.Equal(t, "plain", stub.got.Messages[1].Content)
	parts := stub.got.Messages[2].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", parts[0].ImageURL.URL)
	assert.Equal(t, "with image", parts[1].Text)
}

func TestOpenAIClient_Errors(t *testing.T) {
	c := &OpenAIClient{client: &stubCompleter{err: errors.New("503")}}
	_, err := c.Complete(context.Background(), Request{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrLLMCall)

	c = &OpenAIClient{client: &stubCompleter{}}
	_, err = c.Complete(context.Background(), Request{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrLLMCall)
}

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (f *flakyClient) Provider() string { return "flaky" }

func (f *flakyClient) Complete(context.Context, Request) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, ErrLLMCall
	}
	return &Response{Text: "ok"}, nil
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	flaky := &flakyClient{failures: 2}
	resp, err := WithRetry(flaky, cfg).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, flaky.calls)

	broken := &flakyClient{failures: 10}
	_, err = WithRetry(broken, cfg).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrLLMCall)
	assert.Equal(t, 3, broken.calls)
}

func TestWithRetry_PermanentErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"missing credentials", fmt.Errorf("%w: no key", ErrMissingCredentials), 1},
		{"unauthorized", fmt.Errorf("%w: openai: %w", ErrLLMCall, &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}), 1},
		{"bad request", fmt.Errorf("%w: openai: %w", ErrLLMCall, &openai.RequestError{HTTPStatusCode: 400, Err: errors.New("bad")}), 1},
		{"rate limited", fmt.Errorf("%w: openai: %w", ErrLLMCall, &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}), 3},
		{"server error", fmt.Errorf("%w: openai: %w", ErrLLMCall, &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}), 3},
		{"network", fmt.Errorf("%w: dial tcp: connection refused", ErrLLMCall), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &flakyClient{failures: 10, err: tt.err}
			_, err := WithRetry(c, cfg).Complete(context.Background(), Request{})
			require.Error(t, err)
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.wantCalls, c.calls)
		})
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	broken := &flakyClient{failures: 10}
	_, err := WithRetry(broken, RetryConfig{MaxRetries: 5, BaseDelay: time.Hour}).Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, broken.calls)
}
