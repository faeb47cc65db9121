package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		PerAttemptTimeout: 100 * time.Millisecond,
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

// TestDoSucceedsFirstAttempt tests the no-retry happy path.
func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// TestDoRetriesUntilSuccess tests that transient failures are retried and
// the first success stops the loop.
func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestDoExhaustsBudget tests that the last error surfaces after the
// attempt budget is spent.
func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

// TestDoMissingCredentialsNotRetried tests that the fatal precondition
// short-circuits the budget.
func TestDoMissingCredentialsNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return ErrMissingCredentials
	})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, 1, calls)
}

// TestDoCancelledBetweenAttempts tests that the parent context ends the
// whole budget.
func TestDoCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	policy := fastPolicy(10)
	policy.InitialBackoff = 50 * time.Millisecond
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel() // fail the first attempt and cancel during backoff
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// TestDoPerAttemptTimeout tests that each attempt gets its own deadline.
func TestDoPerAttemptTimeout(t *testing.T) {
	policy := fastPolicy(2)
	policy.PerAttemptTimeout = 5 * time.Millisecond

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls, "a timed-out attempt is retried")
}

// TestZeroAttemptsClamped tests that a misconfigured budget still runs the
// operation once.
func TestZeroAttemptsClamped(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 0}.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
