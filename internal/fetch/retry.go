package fetch

import (
	"context"
	"time"
)

// Policy is the explicit retry/timeout policy for one category query:
// per-attempt timeout, attempt budget and backoff curve, evaluated by a
// single driver instead of ad hoc nested timers.
type Policy struct {
	PerAttemptTimeout time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy returns the production defaults; individual knobs are
// overridden from configuration.
func DefaultPolicy() Policy {
	return Policy{
		PerAttemptTimeout: 30 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Do runs op under the policy: each attempt gets its own timeout context,
// failures back off exponentially, and the parent context cancels the
// whole budget (the overall-timeout scope belongs to the caller).
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
		}
		err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		// Fatal preconditions are not retried.
		if err == ErrMissingCredentials {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return lastErr
}
