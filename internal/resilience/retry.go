// Package resilience implements the retry policy: bounded exponential
// backoff with full jitter, classifying transient transport/throttling
// failures as retryable and everything else as terminal.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gateway/internal/gatewayerr"
)

// RetryConfig configures the retry loop. Defaults match the
// RETRY_MAX_ATTEMPTS/RETRY_WAIT_MIN_SECONDS/RETRY_WAIT_MAX_SECONDS
// configuration surface.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first; default 3
	WaitMin     time.Duration // default 1s
	WaitMax     time.Duration // default 10s

	// RetryOnTimeout/RetryOnRateLimit/RetryOnServerError narrow retry
	// scope for call sites that want it; when all three are false (the
	// zero value) classification is driven entirely by
	// gatewayerr.Retryable, which already implements the
	// retryable-class list.
	RetryOnTimeout     bool
	RetryOnRateLimit   bool
	RetryOnServerError bool
}

// DefaultRetryConfig returns the documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, WaitMin: time.Second, WaitMax: 10 * time.Second}
}

func (c RetryConfig) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 3
}

func (c RetryConfig) waitMin() time.Duration {
	if c.WaitMin > 0 {
		return c.WaitMin
	}
	return time.Second
}

func (c RetryConfig) waitMax() time.Duration {
	if c.WaitMax > 0 {
		return c.WaitMax
	}
	return 10 * time.Second
}

// Retry executes fn, retrying with bounded exponential backoff and full
// jitter while the returned error is retryable and attempts remain.
// Non-retryable errors return immediately without consuming further
// attempts.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	attempts := config.maxAttempts()

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt, config.waitMin(), config.waitMax(), true)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err, config) {
			return err
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}

// calculateBackoff implements AWS-style full jitter: the candidate delay is
// base*2^(attempt-1) capped at max, and the actual sleep is drawn uniformly
// from [0, candidate] when jitter is enabled.
func calculateBackoff(attempt int, base, max time.Duration, jitter bool) time.Duration {
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	if jitter {
		backoff = time.Duration(rand.Int63n(int64(backoff) + 1))
	}
	return backoff
}

// isRetryableError decides retry eligibility from the error's
// gatewayerr.Kind rather than by matching substrings of Error(). Typed
// classification survives error-message wording changes that would
// silently break a substring match against "timeout"/"429"/"500"/etc.
func isRetryableError(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
	if !config.anyRetryFlagSet() {
		return gatewayerr.Retryable(err)
	}
	gwErr := gatewayerr.AsError(err)
	switch gwErr.Kind {
	case gatewayerr.KindTimeout:
		return config.RetryOnTimeout
	case gatewayerr.KindRateLimited:
		return config.RetryOnRateLimit
	case gatewayerr.KindServiceUnavailable:
		return config.RetryOnServerError
	default:
		return false
	}
}

func (c RetryConfig) anyRetryFlagSet() bool {
	return c.RetryOnTimeout || c.RetryOnRateLimit || c.RetryOnServerError
}
