package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryManager implements Manager for a single process. The semantics
// mirror the Redis implementation (including lease expiry) so tests and
// single-instance deployments exercise the same contract.
type MemoryManager struct {
	mu    sync.Mutex
	locks map[string]memoryLease
}

type memoryLease struct {
	token     string
	heldUntil time.Time
}

var _ Manager = (*MemoryManager)(nil)

// NewMemoryManager creates an empty in-process lock manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{locks: make(map[string]memoryLease)}
}

func (m *MemoryManager) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if lease, held := m.locks[key]; held && lease.heldUntil.After(now) {
		return "", false, nil
	}

	token := newToken()
	m.locks[key] = memoryLease{token: token, heldUntil: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryManager) Extend(_ context.Context, key string, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	lease, held := m.locks[key]
	if !held || !lease.heldUntil.After(now) || lease.token != token {
		return false, nil
	}
	lease.heldUntil = now.Add(ttl)
	m.locks[key] = lease
	return true, nil
}

func (m *MemoryManager) Release(_ context.Context, key string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease, held := m.locks[key]; held && lease.token == token {
		delete(m.locks, key)
	}
	return nil
}
