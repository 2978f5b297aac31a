package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RemoteServiceError reports that the completion endpoint kept failing after
// the retry budget was exhausted. The last underlying error is wrapped.
type RemoteServiceError struct {
	Attempts int
	Err      error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("completion endpoint failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// RetryPolicy retries transient completion failures with randomized
// exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns the production policy: 3 attempts, backoff
// drawn from an exponentially growing window capped at 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  60 * time.Second,
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the context is
// cancelled, or MaxAttempts is reached. Exhaustion and non-retryable failures
// both surface as *RemoteServiceError.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return &RemoteServiceError{Attempts: attempt, Err: lastErr}
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		logger.Warn("completion request failed, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &RemoteServiceError{Attempts: attempt, Err: ctx.Err()}
		}
	}

	return &RemoteServiceError{Attempts: p.MaxAttempts, Err: lastErr}
}

// backoff returns a random duration in [MinBackoff, min(MaxBackoff,
// MinBackoff<<attempt)]: an exponentially growing jitter window.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	ceil := p.MinBackoff << uint(attempt)
	if ceil > p.MaxBackoff || ceil <= 0 {
		ceil = p.MaxBackoff
	}
	if ceil <= p.MinBackoff {
		return p.MinBackoff
	}
	return p.MinBackoff + time.Duration(rand.Int63n(int64(ceil-p.MinBackoff)))
}

// isRetryable reports whether the error looks transient: rate limiting,
// server-side failures, or transport problems. Auth and request errors
// (4xx other than 429) will not succeed on retry.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Connection-level failures arrive as plain url/transport errors.
	return !errors.Is(err, context.Canceled)
}
