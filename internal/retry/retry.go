// Package retry provides one retry policy shared by every bounded-retry path
// in the application.  The claim flow uses a fixed short backoff; the session
// fetch uses an exponential one.  Both are expressed as a Policy so the
// attempt cap and the backoff schedule live in one place instead of being
// hand-rolled per call site.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns the delay to wait before the given attempt.  Attempts
// are numbered from 1; the function is consulted after attempt n fails and
// before attempt n+1 runs.
type BackoffFunc func(attempt int) time.Duration

// Policy bounds a retried operation: at most MaxAttempts tries, with
// Backoff(attempt) sleeps between them.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return delay },
	}
}

// Exponential returns a policy whose delay doubles each attempt starting
// from base: base, 2*base, 4*base, ...
func Exponential(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return base << (attempt - 1)
		},
	}
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// is cancelled.  The error of the last attempt is returned on exhaustion;
// a context error is returned as-is when cancellation interrupts a backoff
// sleep.  A policy with MaxAttempts < 1 runs fn exactly once.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
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
		if attempt == attempts {
			break
		}
		delay := time.Duration(0)
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return lastErr
}
