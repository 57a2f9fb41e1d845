package store

import (
	"context"
	"sync"

	"github.com/iliyamo/group-cart/internal/model"
)

// MemoryStore keeps group records in a process-local map. It honors the
// same versioned contract as the shared backends, which lets tests and
// single-process deployments exercise the conflict path for real.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]*model.Group
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*model.Group)}
}

// Get returns a deep copy of the stored record.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

// Create stores a fresh record at version 1.
func (s *MemoryStore) Create(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Version = 1
	s.groups[g.ID] = g.Clone()
	return nil
}

// Update applies the conditional write against the in-memory map.
func (s *MemoryStore) Update(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groups[g.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != g.Version {
		return ErrVersionConflict
	}
	g.Version++
	s.groups[g.ID] = g.Clone()
	return nil
}
