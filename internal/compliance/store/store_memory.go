package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"discard/internal/compliance/models"
	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
)

// InMemoryStore keeps proofs in a map keyed by nullifier. Every conditional
// transition runs under the write lock.
type InMemoryStore struct {
	mu     sync.RWMutex
	proofs map[string]*models.Proof
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{proofs: make(map[string]*models.Proof)}
}

func (s *InMemoryStore) Insert(_ context.Context, proof *models.Proof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.proofs[proof.Nullifier]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.proofs[proof.Nullifier] = proof.Clone()
	return nil
}

func (s *InMemoryStore) FindByNullifier(_ context.Context, nullifier string) (*models.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[nullifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// MarkUsed consumes a proof. A valid proof found past its expiry is left
// flipped to expired and ErrExpired is returned.
func (s *InMemoryStore) MarkUsed(_ context.Context, nullifier, usedFor string, now time.Time) (*models.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[nullifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := p.Consume(usedFor, now); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, nullifier, reason string, now time.Time) (*models.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[nullifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := p.Revoke(reason, now); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) ListByAddressCommitment(_ context.Context, commitment string, limit int) ([]*models.Proof, error) {
	return s.list(limit, func(p *models.Proof) bool { return p.AddressCommitment == commitment }), nil
}

func (s *InMemoryStore) ListByEnclave(_ context.Context, mrEnclave string, limit int) ([]*models.Proof, error) {
	return s.list(limit, func(p *models.Proof) bool { return p.MrEnclave == mrEnclave }), nil
}

func (s *InMemoryStore) ListValidByUser(_ context.Context, userID id.UserID, now time.Time) ([]*models.Proof, error) {
	return s.list(0, func(p *models.Proof) bool { return p.UserID == userID && p.IsUsable(now) }), nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.proofs {
		if p.Status == models.StatusValid && p.IsExpired(now) {
			p.Status = models.StatusExpired
			count++
		}
	}
	return count, nil
}

// list returns matching proofs newest first; limit <= 0 means unbounded.
func (s *InMemoryStore) list(limit int, match func(*models.Proof) bool) []*models.Proof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Proof, 0)
	for _, p := range s.proofs {
		if match(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].Nullifier < out[j].Nullifier
		}
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
