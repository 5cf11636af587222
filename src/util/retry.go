package util

import (
	"context"
	"time"

	"havenledger-server/src/models"
)

// RetryPolicy bounds retries of transient upstream failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second}

// Retry runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. Only errors matching ErrGatewayUnavailable are retried. The last
// error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	delay := policy.Backoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !models.IsRetryable(err) || attempt >= policy.MaxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
		if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}
	}
}
