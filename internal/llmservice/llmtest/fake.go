// Package llmtest provides an in-memory llmservice.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"document-processor/internal/llmservice"
)

// Fake answers every request with "response N" and reports fixed usage.
// Hooks let tests fail or block specific calls.
type Fake struct {
	mu       sync.Mutex
	requests []llmservice.Request

	InputTokens  int
	OutputTokens int
	NoUsage      bool
	// FailOn makes the call with this zero-based sequence number fail.
	FailOn int
	// OnCall runs before each call returns.
	OnCall func(n int, req llmservice.Request)
}

func New() *Fake {
	return &Fake{InputTokens: 100, OutputTokens: 50, FailOn: -1}
}

func (f *Fake) Provider() string { return "fake" }

func (f *Fake) Complete(_ context.Context, req llmservice.Request) (*llmservice.Response, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	hook := f.OnCall
	f.mu.Unlock()

	if hook != nil {
		hook(n, req)
	}
	if n == f.FailOn {
		return nil, fmt.Errorf("%w: fake failure on call %d", llmservice.ErrLLMCall, n)
	}

	resp := &llmservice.Response{Text: fmt.Sprintf("response %d", n)}
	if !f.NoUsage {
		resp.InputTokens = f.InputTokens
		resp.OutputTokens = f.OutputTokens
		resp.UsageReported = true
	}
	return resp, nil
}

// Requests returns a copy of every request seen so far.
func (f *Fake) Requests() []llmservice.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llmservice.Request(nil), f.requests...)
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
