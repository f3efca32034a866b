// file: internal/resolver/store.go

package resolver

import (
	"context"
	"sync"

	"fedgate/internal/activity"
)

// Store is the persistent actor store the resolver reads through before
// going to the network. Get returns ErrNotFound on a miss.
type Store interface {
	Get(ctx context.Context, iri string) (*activity.Actor, error)
	Put(ctx context.Context, iri string, actor *activity.Actor) error
}

// MemoryStore is a Store kept in process memory. It is used when the NATS
// KV bucket is disabled, and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	actors map[string]*activity.Actor
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actors: make(map[string]*activity.Actor)}
}

func (s *MemoryStore) Get(_ context.Context, iri string) (*activity.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actor, ok := s.actors[iri]
	if !ok {
		return nil, ErrNotFound
	}
	return actor, nil
}

func (s *MemoryStore) Put(_ context.Context, iri string, actor *activity.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actors[iri] = actor
	return nil
}

// Len returns the number of stored actors
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}
