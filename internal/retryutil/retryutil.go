// Package retryutil provides a declarative retry policy and an execute-with-
// retry combinator used around external text-generation calls.
package retryutil

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Sleeper pauses for the given duration. Injected so tests run without real
// delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// DefaultSleeper sleeps with context cancellation support.
func DefaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy describes how an operation should be retried.
type Policy struct {
	MaxAttempts   int           // Total attempts, including the first
	BaseDelay     time.Duration // Delay before the second attempt
	BackoffFactor float64       // Multiplier applied per attempt
	Jitter        time.Duration // Random extra delay added to each backoff
	RetryIf       func(error) bool // Nil retries every error

	// RateLimitMultiplier scales the base delay when the failure looks like a
	// rate-limit or quota error.
	RateLimitMultiplier float64

	Sleep Sleeper // Nil uses DefaultSleeper
}

// DefaultPolicy returns the retry policy used for text-generation calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		BaseDelay:           time.Second,
		BackoffFactor:       2.0,
		Jitter:              250 * time.Millisecond,
		RateLimitMultiplier: 5.0,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or the context is
// cancelled. The last error is returned on exhaustion.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = DefaultSleeper
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		if sleepErr := sleep(ctx, policy.delay(attempt, err)); sleepErr != nil {
			return sleepErr
		}
	}

	return err
}

// delay computes the backoff before the next attempt: baseDelay scaled by
// backoffFactor^(attempt-1) plus jitter, with the base multiplied for
// rate-limit errors.
func (p Policy) delay(attempt int, err error) time.Duration {
	base := p.BaseDelay
	if IsRateLimited(err) && p.RateLimitMultiplier > 1 {
		base = time.Duration(float64(base) * p.RateLimitMultiplier)
	}

	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffFactor
	}

	delay := time.Duration(d)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}

// IsRateLimited reports whether an error message indicates rate limiting or
// quota exhaustion from the generation provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "429")
}
