// Package retry provides generic bounded retry with exponential backoff
// and jitter for transient failures. Policies are parameterized per call
// class: fast short retries for RPC calls, a slower long-deadline policy
// for transaction-confirmation polling.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config holds retry configuration for one call class.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between retries.
	Multiplier float64

	// Jitter is the fractional randomization applied to each delay
	// (0.25 means +/-25%), de-synchronizing concurrent retry loops.
	Jitter float64

	// Deadline, when non-zero, bounds the whole loop by wall clock
	// regardless of remaining attempts.
	Deadline time.Duration
}

// RPCConfig is the policy for ordinary RPC calls: few fast attempts.
var RPCConfig = Config{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
	Jitter:       0.25,
}

// ConfirmConfig is the policy for transaction-confirmation polling: a
// large attempt budget with slow growth and an overall deadline, after
// which the caller gets a timeout rather than blocking indefinitely.
var ConfirmConfig = Config{
	MaxAttempts:  60,
	InitialDelay: time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   1.5,
	Jitter:       0.25,
	Deadline:     2 * time.Minute,
}

// IsRetryable decides whether an error should trigger another attempt.
// Validation and security failures must return false.
type IsRetryable func(error) bool

// Do executes fn with bounded exponential backoff. Only errors accepted
// by isRetryable are retried; context cancellation stops the loop
// promptly and is surfaced as the context's error.
func Do[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Deadline)
		defer cancel()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(jittered(delay, config.Jitter)):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// jittered spreads d by +/- d*jitter.
func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(d) * (1 + spread))
}
