// Package retry provides retry with exponential backoff and jitter for
// transient provider failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when max retry attempts are exceeded
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Jitter bounds. Each backoff delay is multiplied by a factor drawn
// uniformly from [jitterMin, jitterMin+jitterSpan) so that concurrent
// operations do not retry in lockstep.
const (
	jitterMin  = 0.8
	jitterSpan = 0.4
)

// Config configures retry behavior
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (caps exponential backoff)
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier (default: 2.0)
	Multiplier float64
	// IsRetryable determines if an error should be retried
	IsRetryable func(error) bool
	// OnRetry, if set, is called before each backoff sleep with the attempt
	// number that failed, the jittered delay, and the error.
	OnRetry func(attempt int, delay time.Duration, err error)

	// rand and sleep are injectable for deterministic tests.
	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  DefaultIsRetryable,
	}
}

// DefaultIsRetryable determines if an error is retryable by default.
// Returns true for network errors, timeouts, and temporary failures.
// Provider-aware classification lives in the apierr package; callers wire
// it in through IsRetryable.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"no such host",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}

	for _, pattern := range retryablePatterns {
		if containsFold(errStr, pattern) {
			return true
		}
	}

	return false
}

// containsFold checks if a string contains a substring (case-insensitive).
func containsFold(s, substr string) bool {
	sLower := toLower(s)
	substrLower := toLower(substr)

	if len(sLower) < len(substrLower) {
		return false
	}

	for i := 0; i <= len(sLower)-len(substrLower); i++ {
		if sLower[i:i+len(substrLower)] == substrLower {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	result := make([]byte, len(s))
	for i := range len(s) {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		result[i] = c
	}
	return string(result)
}

// Delay returns the nominal (pre-jitter) backoff delay after the given
// failed attempt, 1-based. It grows exponentially and is capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do executes a function with retry logic and jittered exponential backoff.
func Do(ctx context.Context, config Config, fn func() error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 8 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.IsRetryable == nil {
		config.IsRetryable = DefaultIsRetryable
	}
	if config.rand == nil {
		config.rand = rand.Float64
	}
	if config.sleep == nil {
		config.sleep = sleepContext
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !config.IsRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxAttempts {
			delay := jittered(config.Delay(attempt), config.rand)

			if config.OnRetry != nil {
				config.OnRetry(attempt, delay, err)
			}

			if sleepErr := config.sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, sleepErr)
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, config.MaxAttempts, lastErr)
}

// jittered scales a delay by a random factor in [jitterMin, jitterMin+jitterSpan).
func jittered(d time.Duration, randFn func() float64) time.Duration {
	return time.Duration(float64(d) * (jitterMin + jitterSpan*randFn()))
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
