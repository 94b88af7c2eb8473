// Package event resolves which profiles are currently participating in an
// event, for scoping the discovery feed to an event's attendees.
package event

import (
	"context"
	"sync"
)

// ParticipantStore returns the set of profile ids participating in an event.
// An unknown event yields an empty set and no error.
type ParticipantStore interface {
	ParticipantIDs(ctx context.Context, eventID string) (map[string]struct{}, error)
}

// InMemoryStore is a ParticipantStore for tests and development.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory participant store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]map[string]struct{})}
}

// Join adds profileID to the event.
func (s *InMemoryStore) Join(eventID, profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.events[eventID]
	if !ok {
		members = make(map[string]struct{})
		s.events[eventID] = members
	}
	members[profileID] = struct{}{}
}

// Leave removes profileID from the event.
func (s *InMemoryStore) Leave(eventID, profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.events[eventID]
	delete(members, profileID)
	if len(members) == 0 {
		delete(s.events, eventID)
	}
}

// ParticipantIDs returns a copy of the event's participant set.
func (s *InMemoryStore) ParticipantIDs(ctx context.Context, eventID string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.events[eventID]
	out := make(map[string]struct{}, len(members))
	for id := range members {
		out[id] = struct{}{}
	}
	return out, nil
}
