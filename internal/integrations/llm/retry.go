package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryConfig holds configuration for exponential backoff retry.
type RetryConfig struct {
	MaxRetries  int           // Maximum number of retry attempts
	BaseDelay   time.Duration // Initial delay before first retry
	MaxDelay    time.Duration // Maximum delay cap
	JitterRatio float64       // Jitter as fraction of delay, 0.0-1.0
}

// DefaultRetryConfig returns the backoff shape used when retries are enabled.
// Defaults: 1s base delay, 30s max delay, 25% jitter.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:  maxRetries,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		JitterRatio: 0.25,
	}
}

// WithRetry wraps a Client so transient upstream failures are retried.
// With MaxRetries <= 0 the client is returned unchanged.
func WithRetry(c Client, cfg RetryConfig) Client {
	if cfg.MaxRetries <= 0 {
		return c
	}
	return &retryingClient{next: c, cfg: cfg}
}

type retryingClient struct {
	next Client
	cfg  RetryConfig
}

func (r *retryingClient) Complete(ctx context.Context, messages []Message) (string, error) {
	return withRetry(ctx, r.cfg, "completion", func() (string, error) {
		return r.next.Complete(ctx, messages)
	})
}

// isRetryableError reports whether err is a transient provider error that
// warrants a retry:
//   - chat-completion errors are checked via *UpstreamError (HTTP 429 / 5xx).
//   - Gemini REST errors are checked via *googleapi.Error.
//   - Gemini gRPC errors are checked via status codes
//     (ResourceExhausted, Unavailable, Internal).
//
// Client errors (4xx other than 429) are not retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode == 429 || upErr.StatusCode >= 500
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || (gerr.Code >= 500 && gerr.Code < 600)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.Internal:
			return true
		}
	}

	return false
}

// withRetry executes fn with exponential backoff. Non-retryable errors are
// returned immediately.
func withRetry[T any](ctx context.Context, cfg RetryConfig, operation string, fn func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !isRetryableError(err) {
			return zero, err
		}

		if attempt == cfg.MaxRetries {
			return zero, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
		}

		// base * 2^attempt, plus jitter, capped.
		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
		if cfg.JitterRatio > 0 {
			delay += time.Duration(rand.Float64() * cfg.JitterRatio * float64(delay))
		}
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s: retry loop exited unexpectedly", operation)
}
