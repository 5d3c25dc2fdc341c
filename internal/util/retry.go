// Package util holds the retry policy shared by the OpenAI-backed clients.
package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxBackoff caps a single wait between attempts.
const MaxBackoff = 30 * time.Second

// NewBackoff returns exponential backoff starting at baseDelay with 25%
// jitter, stopping after maxRetries retries or when ctx is done.
func NewBackoff(ctx context.Context, baseDelay time.Duration, maxRetries int) backoff.BackOffContext {
	// WithMaxRetries treats zero as unlimited
	if maxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	b.MaxInterval = MaxBackoff
	// Attempts are bounded by maxRetries, not wall time
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Retry runs op until it succeeds or the policy gives up, returning the
// number of attempts made and the last error. notify, if not nil, sees
// every failure before the wait that follows it.
func Retry(ctx context.Context, baseDelay time.Duration, maxRetries int, op func() error, notify func(attempt int, err error)) (int, error) {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op()
	}, NewBackoff(ctx, baseDelay, maxRetries), func(err error, _ time.Duration) {
		if notify != nil {
			notify(attempts, err)
		}
	})
	return attempts, err
}
