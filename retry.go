package industrymatch

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff. It
// is invoked explicitly by callers (the orchestrator wraps each batch
// classification in one), keeping retry behavior visible and testable.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	sleep func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, backoff
// doubling from 4s capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. The last error is returned as-is.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
