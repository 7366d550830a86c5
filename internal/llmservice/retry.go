package llmservice

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // total attempts
	BaseDelay  time.Duration // delay before the second attempt
	MaxDelay   time.Duration
	Multiplier float64
}

type retryClient struct {
	next Client
	cfg  RetryConfig
}

// WithRetry wraps c so failed calls are retried with exponential backoff.
func WithRetry(c Client, cfg RetryConfig) Client {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	return &retryClient{next: c, cfg: cfg}
}

func (r *retryClient) Provider() string { return r.next.Provider() }

func (r *retryClient) Complete(ctx context.Context, req Request) (*Response, error) {
	attempt := 0
	return retryWithBackoff(ctx, r.cfg, func() (*Response, error) {
		attempt++
		resp, err := r.next.Complete(ctx, req)
		if err != nil && !retryable(err) {
			return nil, permanent{err}
		}
		if err != nil && attempt < r.cfg.MaxRetries {
			log.Warn().Err(err).Int("attempt", attempt).Str("provider", r.next.Provider()).Msg("LLM call failed, retrying")
		}
		return resp, err
	})
}

// permanent marks an error fn should not be retried on.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }

// retryable reports whether err may succeed on another attempt. Missing
// credentials and client errors other than rate limiting never do.
func retryable(err error) bool {
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrUnknownProvider) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return false
	}
	return true
}

// retryWithBackoff executes fn until it succeeds, attempts run out or ctx is done.
// An error wrapped in permanent stops it at once.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := cfg.BaseDelay

	for attempt := 0; attempt < max(1, cfg.MaxRetries); attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		var p permanent
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
				if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
					backoff = cfg.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
