package spider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sha1n/redx-indexer/internal/cloud"
	"github.com/sha1n/redx-indexer/internal/domain"
)

// Backoff is an exponential retry policy.
type Backoff struct {
	Attempts int
	Delay    time.Duration
	Factor   float64
}

// retryable reports whether another attempt can fix err.
func retryable(err error) bool {
	switch {
	case cloud.IsPermanent(err),
		errors.Is(err, domain.ErrInvalidStub),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// policy builds the backoff schedule: no jitter, no elapsed time limit and
// at most Attempts-1 waits.
func (b Backoff) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.Delay
	exp.Multiplier = b.Factor
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	retries := max(b.Attempts, 1) - 1
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Retry runs op until it succeeds, fails permanently or the attempts are
// exhausted. onRetry is called before every wait.
func (b Backoff) Retry(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b.policy(ctx), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})

	if err != nil && retryable(err) {
		return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
	}
	return err
}
