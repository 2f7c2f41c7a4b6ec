// Package retry provides bounded exponential backoff for outbound provider
// calls. Transient network failures are retried with jittered delays; the
// last error is returned once the attempt budget is exhausted.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Transient marks an error as retryable. Provider strategies wrap network
// failures with it so the retry loop can distinguish them from hard
// rejections like a declined plan change.
type Transient struct {
	Err error
}

func (t Transient) Error() string {
	return "transient: " + t.Err.Error()
}

func (t Transient) Unwrap() error {
	return t.Err
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var t Transient
	return errors.As(err, &t)
}

// Policy controls the retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// DefaultPolicy balances quick recovery with protection against hammering a
// failing provider API: 4 attempts, 500ms initial delay doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}

// NextInterval returns the jittered delay before the given retry attempt.
// Attempt starts at 1 for the first retry.
func (p Policy) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := p.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	maxInterval := p.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	// Jitter spreads retry times to avoid coordinated retry storms
	if p.JitterFactor > 0 {
		randomJitter := (rand.Float64()*2 - 1) * p.JitterFactor
		interval *= 1 + randomJitter
	}

	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	return time.Duration(interval)
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. Context cancellation aborts the wait between
// attempts.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPolicy().MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.NextInterval(attempt)):
		}
	}
	return lastErr
}
