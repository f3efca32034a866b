// file: internal/resolver/static.go

package resolver

import (
	"context"
	"net/http"
	"sync"

	"fedgate/internal/activity"
)

// StaticResolver answers from a fixed set of actors and failure statuses.
// It backs the offline check command and tests.
type StaticResolver struct {
	mu       sync.RWMutex
	actors   map[string]*activity.Actor
	statuses map[string]int
	calls    int
}

// NewStaticResolver creates an empty static resolver
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		actors:   make(map[string]*activity.Actor),
		statuses: make(map[string]int),
	}
}

// AddActor registers actor under its id and, if it has one, its key id
func (s *StaticResolver) AddActor(actor *activity.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actors[activity.StripFragment(actor.ID)] = actor
	if actor.HasKey() && actor.PublicKey.ID != "" {
		s.actors[activity.StripFragment(actor.PublicKey.ID)] = actor
	}
}

// AddStatus makes lookups of iri fail with the given HTTP status
func (s *StaticResolver) AddStatus(iri string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[activity.StripFragment(iri)] = status
}

// Calls returns how many times Resolve was invoked
func (s *StaticResolver) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *StaticResolver) Resolve(_ context.Context, ref activity.Reference, _ Store) (*activity.Actor, error) {
	id := activity.StripFragment(ref.ID())

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		return nil, &Error{Err: ErrEmptyReference}
	}
	if status, ok := s.statuses[id]; ok {
		if status == http.StatusGone {
			return nil, goneError(id)
		}
		return nil, &Error{IRI: id, StatusCode: status}
	}
	if actor, ok := s.actors[id]; ok {
		return actor, nil
	}
	return nil, &Error{IRI: id, StatusCode: http.StatusNotFound}
}
