package jobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/dukex/devsim/pkg/models"
)

// MemoryStore keeps jobs in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.Job)}
}

func (m *MemoryStore) Jobs(_ context.Context) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

	return jobs, nil
}

func (m *MemoryStore) SaveJob(_ context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.Key] = *job

	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, key)

	return nil
}

func (m *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
