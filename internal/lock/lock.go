// ============================================================================
// LockManager - distributed mutual exclusion with lease renewal
// ============================================================================
//
// Package: internal/lock
// Purpose: Ensure at most one worker process drains the refresh queue at a
//          time across a horizontally scaled deployment.
//
// This is not a language-level mutex: independent OS processes share only
// the backend store. Acquisition is "set key if absent, with expiry";
// failure to acquire is a normal contention outcome, not an error. A
// crashed holder blocks others at most until its lease expires.
//
// Every acquisition returns a fencing token. Extend and Release present
// the token and are silent no-ops when the stored owner differs, so a
// worker that outlived its lease can never clobber a newer owner's lock.
//
// ============================================================================

package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Manager is the distributed lock contract.
type Manager interface {
	// Acquire atomically claims the key for ttl if it is absent. ok=false
	// means another holder owns it, a normal outcome. On success the
	// returned token proves ownership for Extend and Release.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Extend refreshes the expiry only while the key still exists and is
	// owned by token. ok=false signals the lease was lost (expired,
	// evicted, or taken over); the caller must stop processing.
	Extend(ctx context.Context, key string, token string, ttl time.Duration) (ok bool, err error)

	// Release deletes the key iff it is still owned by token. Releasing a
	// lock that was already lost is a no-op, never an error. Must run on
	// every exit path of the protected section.
	Release(ctx context.Context, key string, token string) error
}

// newToken generates an opaque owner id for one acquisition.
func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in a bad state;
		// fall back to a time-derived token rather than panicking.
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf)
}
