package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxRetryDelay = 5 * time.Minute

// RetryPolicy describes a bounded exponential backoff: delay before the n-th
// retry is InitialDelay * Multiplier^(n-1).
type RetryPolicy struct {
	MaxAttempts  uint          `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = defaultMaxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs op until it succeeds, returns an error wrapped with Permanent,
// the attempts are exhausted or ctx is cancelled. The last op error is returned.
func Retry(ctx context.Context, policy RetryPolicy, op func() error, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(op, policy.newBackOff(ctx), notify)
}

// Permanent marks err as non-retryable for Retry.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
