package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// MemoryStore keeps jobs, the FIFO queue and the active index in process
// memory behind one mutex. Single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[types.JobID]*types.Job
	queue  []types.JobID
	active map[string]types.JobID // ActiveKey -> non-terminal job id
	keys   map[types.JobID]string // reverse index for cleanup on terminal
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[types.JobID]*types.Job),
		active: make(map[string]types.JobID),
		keys:   make(map[types.JobID]string),
	}
}

func (m *MemoryStore) CreateJob(_ context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return ErrConflict
	}

	now := time.Now().UnixMilli()
	if job.Status == "" {
		job.Status = types.StatusPending
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.LastUpdateAt = now

	m.jobs[job.ID] = &job
	if !job.Status.Terminal() {
		key := ActiveKey(job.City, job.Date, job.Categories)
		m.active[key] = job.ID
		m.keys[job.ID] = key
	}
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id types.JobID) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, id types.JobID, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	if err := applyUpdate(job, upd, time.Now().UnixMilli()); err != nil {
		return err
	}
	if job.Status.Terminal() {
		m.dropActive(id)
	}
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id types.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[id]; !exists {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	m.dropActive(id)
	return nil
}

func (m *MemoryStore) Enqueue(_ context.Context, id types.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, id)
	return nil
}

func (m *MemoryStore) Dequeue(context.Context) (types.JobID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return "", false, nil
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	return id, true, nil
}

func (m *MemoryStore) FindActive(_ context.Context, key string) (types.JobID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.active[key]
	return id, ok
}

// dropActive removes the active-index entry for a job, if it still points
// at this job. Caller holds the mutex.
func (m *MemoryStore) dropActive(id types.JobID) {
	key, ok := m.keys[id]
	if !ok {
		return
	}
	delete(m.keys, id)
	if m.active[key] == id {
		delete(m.active, key)
	}
}
