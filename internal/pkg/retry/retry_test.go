package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexichat/backend/internal/pkg/errs"
)

func fastPolicy(attempts uint) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return errs.ErrUnavailable
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "exactly MaxAttempts attempts, no more")
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestDo_RecoversMidway(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errs.ErrRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorShortCircuits(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errs.ErrAuth
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")
	assert.ErrorIs(t, err, errs.ErrAuth)
}

func TestDo_CustomClassifier(t *testing.T) {
	sentinel := errors.New("special")
	policy := fastPolicy(3)
	policy.IsRetryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts:     10,
		InitialInterval: time.Hour, // would stall without cancellation
		MaxInterval:     time.Hour,
		Multiplier:      2,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func() error {
			calls++
			return errs.ErrUnavailable
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2}.
		Do(context.Background(), func() error {
			calls++
			return errs.ErrUnavailable
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
