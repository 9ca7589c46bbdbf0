// Package retry runs ledger calls under a bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retries of a single operation
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy mirrors the production ledger settings
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// NotifyFunc is called before each retry with the error and the wait
type NotifyFunc func(err error, attempt int, wait time.Duration)

// Do runs op until it succeeds, returns an error for which retryable is false,
// or MaxAttempts is reached. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(context.Context) error, notify NotifyFunc) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		expo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		expo.MaxInterval = p.MaxInterval
	}
	expo.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(err, attempt, wait)
		}
	}

	return backoff.RetryNotify(operation, b, onRetry)
}
