// Package retry provides the single retry policy applied by the uploader,
// the embedding batcher, the vector gateway and the answer generator.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lexichat/backend/internal/pkg/errs"
)

// Policy describes a bounded exponential-backoff retry loop.
// The zero value is not usable; construct with explicit fields or Default().
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// Multiplier grows the interval after each failed attempt.
	Multiplier float64
	// RandomizationFactor jitters each interval. Zero means deterministic.
	RandomizationFactor float64
	// IsRetryable classifies errors. When nil, errs.Retryable is used.
	IsRetryable func(error) bool
}

// Default mirrors the tuning used across the codebase for provider calls:
// 3 attempts, 500ms initial interval, 10s cap, jittered.
func Default() Policy {
	return Policy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = errs.Retryable
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(attempts-1)))
}
