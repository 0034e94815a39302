// Package local is the device-side mirror of synced entities. Writes here
// always succeed; the sync engine is responsible for reconciling them with
// the server later.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/medistock/syncengine/entity"
)

var (
	// ErrNotFound is returned when an entity does not exist locally.
	ErrNotFound = errors.New("entity not found")

	// ErrExists is returned when inserting an entity whose id is already
	// present. Pull paths treat it as benign for append-only records.
	ErrExists = errors.New("entity already exists")
)

// Store persists one kind of entity locally.
type Store interface {
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	GetByID(ctx context.Context, id string) (json.RawMessage, error)
	Insert(ctx context.Context, id string, payload json.RawMessage) error
	Update(ctx context.Context, id string, payload json.RawMessage) error
	Upsert(ctx context.Context, id string, payload json.RawMessage) error
	Delete(ctx context.Context, id string) error
}

// Registry resolves the Store for each entity kind.
type Registry struct {
	mu     sync.RWMutex
	stores map[entity.Kind]Store
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[entity.Kind]Store)}
}

// Register binds a store to a kind, replacing any previous binding.
func (r *Registry) Register(kind entity.Kind, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[kind] = store
}

// For returns the store for a kind, or nil when none is registered.
func (r *Registry) For(kind entity.Kind) Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stores[kind]
}

// MemoryStore is an in-memory Store, used in tests and as the default
// backing for kinds without a dedicated table.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.records))
	for id, payload := range s.records {
		out[id] = payload
	}
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return payload, nil
}

func (s *MemoryStore) Insert(ctx context.Context, id string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return ErrExists
	}
	s.records[id] = payload
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	s.records[id] = payload
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, id string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = payload
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// IDs returns the stored ids in sorted order. Test helper.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
