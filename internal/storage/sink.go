// Package storage abstracts the object-storage backend that generated media
// is persisted to. Production uses the Supabase Storage API; development and
// tests use the local filesystem.
package storage

import "context"

// Object describes a stored artifact.
type Object struct {
	Name string `json:"name"`
}

// Sink is the object-storage contract consumed by the orchestrator and the
// admin handlers.
type Sink interface {
	// EnsureBucket creates the backing bucket if it does not exist yet.
	// Creation is idempotent; "already exists" is not an error.
	EnsureBucket(ctx context.Context) error
	// Put writes data under key with the given content type, replacing any
	// existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL resolves the publicly reachable URL for key.
	PublicURL(key string) string
	// List returns the objects stored directly under prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Remove deletes the object at key; a missing object yields
	// domain.ErrNotFound, never silent success.
	Remove(ctx context.Context, key string) error
}
