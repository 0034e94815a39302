// Package remote is the server-side boundary of the sync engine. A
// Repository abstracts one entity collection on the server; the HTTP
// implementation talks to the backend's REST surface.
package remote

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/medistock/syncengine/entity"
)

// Repository gives access to one entity collection on the server. Payloads
// stay opaque json so the strategy and merge layers own interpretation.
type Repository interface {
	// GetByID fetches the current server version, or (nil, nil) when the
	// entity does not exist remotely.
	GetByID(ctx context.Context, id string) (json.RawMessage, error)

	// GetAll fetches every record in the collection, keyed by id.
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)

	// Upsert creates or replaces the server version.
	Upsert(ctx context.Context, id string, payload json.RawMessage) error

	// Delete removes the server version. Deleting an absent entity is not
	// an error.
	Delete(ctx context.Context, id string) error
}

// Registry resolves the Repository for each entity kind.
type Registry struct {
	mu    sync.RWMutex
	repos map[entity.Kind]Repository
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[entity.Kind]Repository)}
}

// Register binds a repository to a kind, replacing any previous binding.
func (r *Registry) Register(kind entity.Kind, repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repos[kind] = repo
}

// For returns the repository for a kind, or nil when none is registered.
func (r *Registry) For(kind entity.Kind) Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repos[kind]
}

// Kinds returns every kind with a registered repository.
func (r *Registry) Kinds() []entity.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]entity.Kind, 0, len(r.repos))
	for kind := range r.repos {
		kinds = append(kinds, kind)
	}
	return kinds
}
