// Package registry holds the in-process job table. It is the only shared
// mutable state in the service; all access goes through the Registry contract.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
)

// Memory is a mutex-guarded in-memory implementation of domain.Registry.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemory constructs an empty registry.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job)}
}

// Create stores a copy of job keyed by its id.
func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return domain.NewError(domain.ErrInternal, "job id already registered")
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a snapshot of the job or domain.ErrNotFound.
func (m *Memory) Get(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies mutate under the registry lock so concurrent updates on the
// same id serialize and none is lost. A failed mutator leaves the stored job
// untouched.
func (m *Memory) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := job.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	m.jobs[id] = next
	return next.Clone(), nil
}

// List returns snapshots of all jobs ordered by creation time.
func (m *Memory) List(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ domain.Registry = (*Memory)(nil)
