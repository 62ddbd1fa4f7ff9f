package domain

import "context"

// Registry owns all job records. Mutation happens exclusively through Update
// so two orchestration steps for the same job can never race to leave partial
// state behind.
type Registry interface {
	// Create stores a new job. The id must not already exist.
	Create(ctx context.Context, job *Job) error
	// Get returns a snapshot of the job or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	// Update applies mutate to the job identified by id atomically with
	// respect to concurrent reads and writes, returning the updated snapshot.
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)
	// List returns snapshots of all known jobs, for diagnostics only.
	List(ctx context.Context) ([]*Job, error)
}
