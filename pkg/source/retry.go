package source

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction is the fraction of backoff used for jitter (0.0-1.0).
	JitterFraction float64
}

// DefaultRetryConfig returns the policy shared by all clients.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// withRetry runs fn until it succeeds, fails permanently, or the attempts
// run out. The last error is returned wrapped.
func withRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		sleep := backoff + jitter(backoff, cfg.JitterFraction)
		if cfg.MaxBackoff > 0 && sleep > cfg.MaxBackoff {
			sleep = cfg.MaxBackoff
		}

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// jitter returns a random duration in range [-fraction*d, +fraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	r := float64(d) * fraction
	return time.Duration((rand.Float64() - 0.5) * 2 * r)
}
