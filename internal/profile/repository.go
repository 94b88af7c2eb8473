package profile

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory Repository used for tests and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	// scores[viewerID][candidateID]
	scores map[string]map[string]int
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles: make(map[string]*Profile),
		scores:   make(map[string]map[string]int),
	}
}

// Upsert stores a copy of p. A zero CreatedAt is set to now.
func (r *InMemoryRepository) Upsert(p *Profile) {
	c := p.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[c.ID] = c
}

// Delete removes a profile. Deleting an unknown id is a no-op.
func (r *InMemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, id)
}

// SetCompatibility records the score of candidateID as seen by viewerID.
func (r *InMemoryRepository) SetCompatibility(viewerID, candidateID string, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byCandidate, ok := r.scores[viewerID]
	if !ok {
		byCandidate = make(map[string]int)
		r.scores[viewerID] = byCandidate
	}
	byCandidate[candidateID] = ClampScore(score)
}

// GetByID returns a copy of the stored profile.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

// ListCandidates implements Repository.
func (r *InMemoryRepository) ListCandidates(ctx context.Context, q Query) ([]*Profile, *Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Profile
	for _, p := range r.profiles {
		if p.ID == q.ViewerID {
			continue
		}
		if q.Cursor != nil && !q.Cursor.After(p) {
			continue
		}
		candidates = append(candidates, p)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var next *Cursor
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
		last := candidates[len(candidates)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	scores := r.scores[q.ViewerID]
	out := make([]*Profile, len(candidates))
	for i, p := range candidates {
		c := p.Clone()
		if s, ok := scores[p.ID]; ok {
			c.CompatibilityScore = &s
		}
		out[i] = c
	}
	return out, next, nil
}
