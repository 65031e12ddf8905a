package store

import (
	"context"
	"sync"
	"time"

	"discard/internal/nullifier/models"
	"discard/pkg/platform/sentinel"
)

// InMemoryStore keeps nullifiers in a map. The existence check and the write
// happen under one lock, so concurrent inserts of the same nullifier admit
// exactly one winner.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Record)}
}

func (s *InMemoryStore) Insert(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Nullifier]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.records[record.Nullifier] = record.Clone()
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, nullifier string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[nullifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) Exists(_ context.Context, nullifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[nullifier]
	return ok, nil
}

func (s *InMemoryStore) ExistsBatch(_ context.Context, nullifiers []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(nullifiers))
	for _, n := range nullifiers {
		_, out[n] = s.records[n]
	}
	return out, nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.records {
		if r.Status == models.StatusActive && r.IsExpired(now) {
			r.Status = models.StatusExpired
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for n, r := range s.records {
		if r.Status == models.StatusExpired && r.ExpiresAt.Before(cutoff) {
			delete(s.records, n)
			count++
		}
	}
	return count, nil
}
