package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"discard/internal/nullifier/metrics"
	"discard/internal/nullifier/models"
	"discard/internal/nullifier/store"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	auditmemory "discard/pkg/platform/audit/store/memory"
	"discard/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	metrics *metrics.Metrics
	service *Service
	now     time.Time
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

type auditSink struct{ store *auditmemory.InMemoryStore }

func (a auditSink) Emit(ctx context.Context, e audit.Event) error { return a.store.Append(ctx, e) }

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, WithAuditPublisher(auditSink{s.audit}), WithMetrics(s.metrics))
	s.now = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) markUsed(n string, proofType models.ProofType, ttl time.Duration) (*models.Record, error) {
	return s.service.MarkUsed(s.ctx, MarkUsedRequest{
		Nullifier: n,
		ProofType: proofType,
		ExpiresAt: s.now.Add(ttl),
	})
}

func (s *ServiceSuite) TestMarkUsed() {
	s.Run("first use succeeds", func() {
		rec, err := s.service.MarkUsed(s.ctx, MarkUsedRequest{
			Nullifier: "nf-first",
			ProofType: models.ProofTypeTransfer,
			ExpiresAt: s.now.Add(time.Hour),
			ProofHash: "abc",
			UsedBy:    "wallet-1",
			Context:   map[string]string{"amount_bucket": "small"},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusActive, rec.Status)
		s.Equal(s.now, rec.UsedAt)

		used, err := s.service.IsUsed(s.ctx, "nf-first")
		s.Require().NoError(err)
		s.True(used)

		got, err := s.service.Get(s.ctx, "nf-first")
		s.Require().NoError(err)
		s.Equal("wallet-1", got.UsedBy)
	})

	s.Run("second use is a replay regardless of caller", func() {
		_, err := s.markUsed("nf-replay", models.ProofTypeCompliance, time.Hour)
		s.Require().NoError(err)

		_, err = s.service.MarkUsed(s.ctx, MarkUsedRequest{
			Nullifier: "nf-replay",
			ProofType: models.ProofTypeWithdrawal,
			ExpiresAt: s.now.Add(48 * time.Hour),
			UsedBy:    "someone-else",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeReplayDetected))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ReplaysRejected.WithLabelValues("withdrawal")))

		rejected, err := s.audit.ListByAction(s.ctx, audit.EventNullifierReplayRejected)
		s.Require().NoError(err)
		s.Len(rejected, 1)
	})

	s.Run("validation failures", func() {
		for _, tc := range []struct {
			n   string
			pt  models.ProofType
			ttl time.Duration
		}{
			{"", models.ProofTypeCompliance, time.Hour},
			{strings.Repeat("x", 129), models.ProofTypeCompliance, time.Hour},
			{"nf", "unknown", time.Hour},
			{"nf", models.ProofTypeCompliance, -time.Minute},
		} {
			_, err := s.markUsed(tc.n, tc.pt, tc.ttl)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "case %+v", tc)
		}
	})
}

func (s *ServiceSuite) TestIsUsedUnknown() {
	used, err := s.service.IsUsed(s.ctx, "never-seen")
	s.Require().NoError(err)
	s.False(used)

	_, err = s.service.Get(s.ctx, "never-seen")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCheckBatch() {
	_, err := s.markUsed("used-1", models.ProofTypeVelocity, time.Hour)
	s.Require().NoError(err)

	s.Run("preserves order and duplicates", func() {
		res, err := s.service.CheckBatch(s.ctx, []string{"fresh", "used-1", "fresh", "used-1"})
		s.Require().NoError(err)
		s.Equal([]models.BatchResult{
			{Nullifier: "fresh", Used: false},
			{Nullifier: "used-1", Used: true},
			{Nullifier: "fresh", Used: false},
			{Nullifier: "used-1", Used: true},
		}, res)
	})

	s.Run("empty batch", func() {
		res, err := s.service.CheckBatch(s.ctx, nil)
		s.Require().NoError(err)
		s.Empty(res)
	})

	s.Run("oversized batch", func() {
		batch := make([]string, models.MaxBatchSize+1)
		for i := range batch {
			batch[i] = fmt.Sprintf("n-%d", i)
		}
		_, err := s.service.CheckBatch(s.ctx, batch)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("invalid member", func() {
		_, err := s.service.CheckBatch(s.ctx, []string{"ok", ""})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestExpiryAndCleanup verifies sweeps never make a nullifier reusable within retention.
func (s *ServiceSuite) TestExpiryAndCleanup() {
	_, err := s.markUsed("nf-expiring", models.ProofTypeShieldIntent, time.Minute)
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute))
	n, err := s.service.MarkExpired(later)
	s.Require().NoError(err)
	s.Equal(1, n)

	used, err := s.service.IsUsed(later, "nf-expiring")
	s.Require().NoError(err)
	s.True(used, "expired nullifier stays used")

	_, err = s.service.MarkUsed(later, MarkUsedRequest{
		Nullifier: "nf-expiring",
		ProofType: models.ProofTypeShieldIntent,
		ExpiresAt: s.now.Add(time.Hour),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeReplayDetected))

	n, err = s.service.CleanupExpired(later, time.Hour)
	s.Require().NoError(err)
	s.Equal(0, n, "still inside retention window")

	muchLater := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
	n, err = s.service.CleanupExpired(muchLater, time.Hour)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.service.CleanupExpired(muchLater, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// TestConcurrentMarkUsed verifies exactly one of many concurrent consumers succeeds.
func (s *ServiceSuite) TestConcurrentMarkUsed() {
	const goroutines = 64
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		replays   atomic.Int32
		others    atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.markUsed("nf-race", models.ProofTypeShieldIntent, time.Hour)
			var de *dErrors.Error
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &de) && de.Code == dErrors.CodeReplayDetected:
				replays.Add(1)
			default:
				others.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), replays.Load())
	s.Zero(others.Load())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Consumed.WithLabelValues("shield_intent")))
}
