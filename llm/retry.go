package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxRetries  = 5
	defaultInitBackoff = 1 * time.Second
	defaultMaxBackoff  = 60 * time.Second
	defaultFactor      = 2.0
)

// RetryConfig holds retry settings for LLM calls.
type RetryConfig struct {
	MaxRetries  int           `json:"max_retries"`  // Max retry attempts (default 5)
	InitBackoff time.Duration `json:"init_backoff"` // Initial backoff (default 1s)
	MaxBackoff  time.Duration `json:"max_backoff"`  // Max backoff duration (default 60s)
	Factor      float64       `json:"factor"`       // Backoff multiplier (default 2)
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  defaultMaxRetries,
		InitBackoff: defaultInitBackoff,
		MaxBackoff:  defaultMaxBackoff,
		Factor:      defaultFactor,
	}
}

// withDefaults fills unset fields.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitBackoff <= 0 {
		c.InitBackoff = defaultInitBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Factor < 1 {
		c.Factor = defaultFactor
	}
	return c
}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// withRetry calls fn until it succeeds, fails permanently, or runs out of
// retries. Only rate limit and server errors are retried.
func withRetry(ctx context.Context, cfg RetryConfig, name string, fn func() error) error {
	cfg = cfg.withDefaults()
	backoff := cfg.InitBackoff

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if isBillingError(err) {
			return fmt.Errorf("billing/payment error (fatal): %w", err)
		}
		if !isRetryableError(err) {
			return fmt.Errorf("%s request failed: %w", name, err)
		}
		if attempt == cfg.MaxRetries {
			return fmt.Errorf("%s request failed after %d retries: %w", name, cfg.MaxRetries, err)
		}

		if err := sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = time.Duration(float64(backoff) * cfg.Factor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "temporarily unavailable")
}

func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// isBillingError checks for billing and quota errors, which are never retried.
func isBillingError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "credits") ||
		strings.Contains(errStr, "quota exceeded")
}
