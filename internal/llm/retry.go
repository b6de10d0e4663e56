package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for completion calls
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// RetryClient retries transient provider failures. The pipeline components
// never retry on their own; wrapping the client here is an opt-in policy
// chosen by the process entry point.
type RetryClient struct {
	client Client
	config RetryConfig
}

// NewRetryClient wraps client with config
func NewRetryClient(client Client, config RetryConfig) *RetryClient {
	return &RetryClient{client: client, config: config}
}

// Complete retries the wrapped Complete on transient errors
func (r *RetryClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return withRetry(ctx, r.config, func() (*Response, error) {
		return r.client.Complete(ctx, req)
	})
}

// GetEmbedding retries the wrapped GetEmbedding on transient errors
func (r *RetryClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, r.config, func() ([]float32, error) {
		return r.client.GetEmbedding(ctx, text)
	})
}

func withRetry[T any](ctx context.Context, config RetryConfig, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return zero, err
		}
		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-time.After(calculateBackoff(attempt, config.BaseDelay, config.MaxDelay)):
		case <-ctx.Done():
			return zero, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// isRetryableError reports rate limits, server errors and network timeouts.
// A cancelled or expired caller context is never retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// calculateBackoff uses exponential backoff with jitter between 0.5x and 1.5x
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func isHTTPStatusRetryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
