package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy controls how transient provider errors are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.statusCode, e.body)
}

// IsAuthError reports a rejected or missing credential.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae) || errors.Is(err, ErrMissingAPIKey)
}

// IsRateLimited checks if an error is a provider rate limit.
func IsRateLimited(err error) bool {
	var re *rateLimitError
	return errors.As(err, &re)
}

func retryable(err error) bool {
	var re *rateLimitError
	var se *serverError
	return errors.As(err, &re) || errors.As(err, &se)
}

func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt < policy.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.delay(attempt)):
			}
		}
	}
	return lastErr
}
