package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts, not counting the initial call
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // ceiling on the delay between retries
	BackoffMultiplier float64
	Jitter            bool // +/- 50% randomization to avoid thundering herd
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default policy: three retries, one-second
// base delay, doubling with jitter, capped at a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64() // [0.5, 1.5)
	}
	return time.Duration(d)
}

// Retry executes fn under the policy. Only errors for which IsRetryable
// returns true are retried; a RateLimitError with a Retry-After hint uses
// that delay instead of the backoff schedule, unless it exceeds MaxDelay in
// which case the error is surfaced immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
			hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
			if hinted > policy.MaxDelay {
				return zero, err
			}
			delay = hinted
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{ClientError: ClientError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
