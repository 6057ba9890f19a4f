// Package memory provides an in-process principals.Store backed by a map.
// It is intended for tests, development and small static deployments.
package memory

import (
	"context"
	"sync"

	"github.com/ggoodman/authguard/principals"
)

// Store implements principals.Store using an in-memory map.
type Store struct {
	mu    sync.RWMutex
	items map[principals.ID]principals.Principal
}

// New creates a Store seeded with the given principals.
func New(ps ...principals.Principal) *Store {
	s := &Store{items: make(map[principals.ID]principals.Principal, len(ps))}
	for _, p := range ps {
		s.items[p.ID] = p
	}
	return s
}

// FindByID returns a copy of the stored principal.
func (s *Store) FindByID(ctx context.Context, id principals.ID) (principals.Principal, error) {
	if err := ctx.Err(); err != nil {
		return principals.Principal{}, err
	}

	s.mu.RLock()
	p, ok := s.items[id]
	s.mu.RUnlock()

	if !ok {
		return principals.Principal{}, principals.ErrNotFound
	}
	return p, nil
}

// Put inserts or replaces a principal.
func (s *Store) Put(p principals.Principal) {
	s.mu.Lock()
	s.items[p.ID] = p
	s.mu.Unlock()
}

// Delete removes a principal. Deleting an unknown ID is a no-op.
func (s *Store) Delete(id principals.ID) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Replace atomically swaps the full contents of the store.
func (s *Store) Replace(ps []principals.Principal) {
	items := make(map[principals.ID]principals.Principal, len(ps))
	for _, p := range ps {
		items[p.ID] = p
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// Len reports the number of stored principals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Compile-time interface check
var _ principals.Store = (*Store)(nil)
