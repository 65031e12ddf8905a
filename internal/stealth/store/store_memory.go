package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"discard/internal/stealth/models"
	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
)

// InMemoryStore keeps addresses in a map keyed by stealth address. Each
// transition runs the model's guarded transition under the write lock.
type InMemoryStore struct {
	mu        sync.RWMutex
	addresses map[string]*models.ReceiveAddress
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{addresses: make(map[string]*models.ReceiveAddress)}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.ReceiveAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.addresses[a.StealthAddress]; exists {
		return sentinel.ErrConflict
	}
	s.addresses[a.StealthAddress] = a.Clone()
	return nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) (*models.ReceiveAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.addresses[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) FindCurrentByUser(_ context.Context, userID id.UserID, now time.Time) (*models.ReceiveAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var current *models.ReceiveAddress
	for _, a := range s.addresses {
		if a.UserID != userID || !a.IsCurrent(now) {
			continue
		}
		if current == nil || a.CreatedAt.After(current.CreatedAt) {
			current = a
		}
	}
	if current == nil {
		return nil, sentinel.ErrNotFound
	}
	return current.Clone(), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID, limit int) ([]*models.ReceiveAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReceiveAddress, 0)
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].StealthAddress < out[j].StealthAddress
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) RecordDeposit(_ context.Context, address string, d models.Deposit, now time.Time) (*models.ReceiveAddress, error) {
	return s.mutate(address, func(a *models.ReceiveAddress) error { return a.Fund(d, now) })
}

func (s *InMemoryStore) StartShielding(_ context.Context, address string, now time.Time) (*models.ReceiveAddress, error) {
	return s.mutate(address, func(a *models.ReceiveAddress) error { return a.StartShielding(now) })
}

func (s *InMemoryStore) ConfirmShield(_ context.Context, address, txSig string, now time.Time) (*models.ReceiveAddress, error) {
	return s.mutate(address, func(a *models.ReceiveAddress) error { return a.ConfirmShield(txSig, now) })
}

func (s *InMemoryStore) Quarantine(_ context.Context, address, reason string, now time.Time) (*models.ReceiveAddress, error) {
	return s.mutate(address, func(a *models.ReceiveAddress) error { return a.Quarantine(reason, now) })
}

func (s *InMemoryStore) RecordCompliance(_ context.Context, address string, passed bool, reason string, now time.Time) (*models.ReceiveAddress, error) {
	return s.mutate(address, func(a *models.ReceiveAddress) error {
		a.RecordCompliance(passed, reason, now)
		return nil
	})
}

func (s *InMemoryStore) ExpireStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.addresses {
		expired, err := a.Expire(now)
		if err != nil {
			continue
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// mutate applies fn to a copy of the stored address. A failing fn that still
// moved the status (lazy expiry) is persisted; other failures change nothing.
func (s *InMemoryStore) mutate(address string, fn func(*models.ReceiveAddress) error) (*models.ReceiveAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := a.Clone()
	err := fn(working)
	if err != nil && working.Status == a.Status {
		return nil, err
	}
	s.addresses[address] = working
	if err != nil {
		return nil, err
	}
	return working.Clone(), nil
}
