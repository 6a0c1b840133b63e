package run

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient node failures: exponential
// backoff with jitter, capped per attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Base is the exponential growth factor.
	Base float64
	// JitterFrac spreads each delay by up to this fraction either way, so
	// retry storms against one block decorrelate.
	JitterFrac float64
}

// DefaultRetryPolicy mirrors the guard defaults: up to 3 attempts, 100ms
// initial backoff doubling to a 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Base:           2.0,
		JitterFrac:     0.2,
	}
}

// Delay returns the backoff before retry number attempt (1-based: the
// delay after the attempt-th failure).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.Base, float64(attempt-1))
	if max := float64(p.MaxBackoff); d > max {
		d = max
	}
	if p.JitterFrac > 0 {
		d += d * p.JitterFrac * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// sleep waits out the backoff without holding any lock, aborting early if
// the caller's context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
