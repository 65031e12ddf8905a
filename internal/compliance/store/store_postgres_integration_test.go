//go:build integration

package store_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"discard/internal/compliance/models"
	"discard/internal/compliance/store"
	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
	"discard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "compliance_proofs"))
}

func newProof(checkedAt time.Time, ttl time.Duration) *models.Proof {
	return &models.Proof{
		Nullifier:         "nf-" + uuid.NewString(),
		AddressCommitment: strings.Repeat("cd", 32),
		Compliant:         true,
		RiskLevel:         models.RiskMedium,
		MrEnclave:         strings.Repeat("ab", 32),
		CheckedAt:         checkedAt,
		ExpiresAt:         checkedAt.Add(ttl),
		Status:            models.StatusValid,
	}
}

func (s *PostgresStoreSuite) TestInsertFindAndReplay() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := newProof(now, time.Hour)
	p.MrSigner = strings.Repeat("01", 32)
	p.AttestationQuote = []byte("quote")
	p.UserID = id.UserID(uuid.New())
	s.Require().NoError(s.store.Insert(ctx, p))

	found, err := s.store.FindByNullifier(ctx, p.Nullifier)
	s.Require().NoError(err)
	s.Equal(p.MrSigner, found.MrSigner)
	s.Equal(p.AttestationQuote, found.AttestationQuote)
	s.Equal(p.UserID, found.UserID)
	s.True(p.ExpiresAt.Equal(found.ExpiresAt))
	s.Nil(found.UsedAt)

	s.ErrorIs(s.store.Insert(ctx, newProofWithNullifier(p.Nullifier, now)), sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByNullifier(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func newProofWithNullifier(n string, now time.Time) *models.Proof {
	p := newProof(now, 2*time.Hour)
	p.Nullifier = n
	return p
}

func (s *PostgresStoreSuite) TestMarkUsed() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Run("consumes once", func() {
		p := newProof(now, time.Hour)
		s.Require().NoError(s.store.Insert(ctx, p))

		used, err := s.store.MarkUsed(ctx, p.Nullifier, "addr-1", now)
		s.Require().NoError(err)
		s.Equal(models.StatusUsed, used.Status)
		s.Equal("addr-1", used.UsedFor)
		s.Require().NotNil(used.UsedAt)

		_, err = s.store.MarkUsed(ctx, p.Nullifier, "addr-2", now)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("expired proof flips on consumption", func() {
		p := newProof(now, time.Minute)
		s.Require().NoError(s.store.Insert(ctx, p))

		_, err := s.store.MarkUsed(ctx, p.Nullifier, "", now.Add(2*time.Minute))
		s.ErrorIs(err, sentinel.ErrExpired)

		found, err := s.store.FindByNullifier(ctx, p.Nullifier)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, found.Status)
	})

	s.Run("revoked proof cannot be consumed", func() {
		p := newProof(now, time.Hour)
		s.Require().NoError(s.store.Insert(ctx, p))
		_, err := s.store.Revoke(ctx, p.Nullifier, "list update", now)
		s.Require().NoError(err)

		_, err = s.store.MarkUsed(ctx, p.Nullifier, "", now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("missing", func() {
		_, err := s.store.MarkUsed(ctx, "missing", "", now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestConcurrentMarkUsed() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := newProof(now, time.Hour)
	s.Require().NoError(s.store.Insert(ctx, p))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.MarkUsed(ctx, p.Nullifier, "", now)
			if err == nil {
				wins.Add(1)
				return
			}
			if !errors.Is(err, sentinel.ErrAlreadyUsed) {
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresStoreSuite) TestRevoke() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := newProof(now, time.Hour)
	s.Require().NoError(s.store.Insert(ctx, p))

	revoked, err := s.store.Revoke(ctx, p.Nullifier, "sanctions update", now)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.Equal("sanctions update", revoked.RevocationReason)

	_, err = s.store.Revoke(ctx, p.Nullifier, "", now)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.Revoke(ctx, "missing", "", now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestQueriesAndSweep() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := id.UserID(uuid.New())

	older := newProof(now.Add(-time.Minute), time.Hour)
	older.UserID = user
	newer := newProof(now, time.Hour)
	newer.UserID = user
	short := newProof(now, time.Second)
	short.UserID = user
	short.MrEnclave = strings.Repeat("ef", 32)
	for _, p := range []*models.Proof{older, newer, short} {
		s.Require().NoError(s.store.Insert(ctx, p))
	}

	byCommitment, err := s.store.ListByAddressCommitment(ctx, strings.Repeat("cd", 32), 2)
	s.Require().NoError(err)
	s.Len(byCommitment, 2)

	byEnclave, err := s.store.ListByEnclave(ctx, strings.Repeat("ef", 32), 10)
	s.Require().NoError(err)
	s.Require().Len(byEnclave, 1)
	s.Equal(short.Nullifier, byEnclave[0].Nullifier)

	later := now.Add(time.Minute)
	valid, err := s.store.ListValidByUser(ctx, user, later)
	s.Require().NoError(err)
	s.Require().Len(valid, 2)
	s.Equal(newer.Nullifier, valid[0].Nullifier)

	n, err := s.store.MarkExpired(ctx, later)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.store.MarkExpired(ctx, later)
	s.Require().NoError(err)
	s.Zero(n)
}
