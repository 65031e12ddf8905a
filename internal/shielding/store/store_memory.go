package store

import (
	"context"
	"sync"

	"discard/internal/shielding/models"
	"discard/pkg/platform/sentinel"
)

// InMemoryStore keeps pool balances in a map keyed by pool ID.
type InMemoryStore struct {
	mu    sync.Mutex
	pools map[string]*models.PoolBalance
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{pools: make(map[string]*models.PoolBalance)}
}

// Init stores p unless a pool with the same ID exists.
func (s *InMemoryStore) Init(_ context.Context, p *models.PoolBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[p.PoolID]; ok {
		return sentinel.ErrConflict
	}
	s.pools[p.PoolID] = p.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, poolID string) (*models.PoolBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// CompareAndSwap replaces the pool with next if the stored version still
// equals expected.
func (s *InMemoryStore) CompareAndSwap(_ context.Context, expected int64, next *models.PoolBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[next.PoolID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Version != expected {
		return sentinel.ErrConflict
	}
	s.pools[next.PoolID] = next.Clone()
	return nil
}
