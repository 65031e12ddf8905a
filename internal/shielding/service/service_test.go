package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Nullifiers,Proofs,Addresses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	complianceModels "discard/internal/compliance/models"
	"discard/internal/elgamal"
	nullifierModels "discard/internal/nullifier/models"
	nullifierService "discard/internal/nullifier/service"
	"discard/internal/shielding/metrics"
	"discard/internal/shielding/models"
	"discard/internal/shielding/service/mocks"
	"discard/internal/shielding/store"
	stealthModels "discard/internal/stealth/models"
	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/sentinel"
	"discard/pkg/requestcontext"
)

const (
	address    = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	commitment = "c0ffee"
)

type ShieldingServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	nullifiers *mocks.MockNullifiers
	proofs     *mocks.MockProofs
	addresses  *mocks.MockAddresses
	store      *store.InMemoryStore
	keys       *elgamal.Keypair
	metrics    *metrics.Metrics
	service    *Service
	ctx        context.Context
}

func TestShieldingServiceSuite(t *testing.T) {
	suite.Run(t, new(ShieldingServiceSuite))
}

func (s *ShieldingServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.nullifiers = mocks.NewMockNullifiers(s.ctrl)
	s.proofs = mocks.NewMockProofs(s.ctrl)
	s.addresses = mocks.NewMockAddresses(s.ctrl)
	s.store = store.NewInMemoryStore()
	kp, err := elgamal.GenerateKeypair()
	s.Require().NoError(err)
	s.keys = kp
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service, err = New(s.store, s.nullifiers, s.proofs, s.addresses, "pool-1", kp.PublicKey,
		WithMetrics(s.metrics), WithMaxCASRetries(2))
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
}

func (s *ShieldingServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func funded(amount uint64) *stealthModels.AddressView {
	return &stealthModels.AddressView{StealthAddress: address, Status: stealthModels.StatusFunded, DepositAmount: &amount}
}

func proof(compliant bool, risk complianceModels.RiskLevel) *complianceModels.Proof {
	return &complianceModels.Proof{Nullifier: "nf-proof", AddressCommitment: commitment, Compliant: compliant, RiskLevel: risk}
}

func request() ShieldRequest {
	return ShieldRequest{StealthAddress: address, IntentNullifier: "nf-intent", ComplianceNullifier: "nf-proof"}
}

func (s *ShieldingServiceSuite) expectPrechecks(amount uint64, p *complianceModels.Proof) {
	s.addresses.EXPECT().GetByAddress(gomock.Any(), address).Return(funded(amount), nil)
	s.proofs.EXPECT().GetByNullifier(gomock.Any(), "nf-proof").Return(p, nil)
	s.addresses.EXPECT().Commitment(gomock.Any(), address).Return(commitment, id.UserID{}, nil)
}

func (s *ShieldingServiceSuite) TestNew() {
	_, err := New(nil, s.nullifiers, s.proofs, s.addresses, "pool-1", s.keys.PublicKey)
	s.ErrorContains(err, "pool store is required")
	_, err = New(s.store, s.nullifiers, s.proofs, s.addresses, "", s.keys.PublicKey)
	s.ErrorContains(err, "pool id is required")
	_, err = New(s.store, s.nullifiers, s.proofs, s.addresses, "pool-1", nil)
	s.ErrorContains(err, "pool public key is required")
}

func (s *ShieldingServiceSuite) TestShieldCreditsPool() {
	s.expectPrechecks(1500, proof(true, complianceModels.RiskLow))
	s.nullifiers.EXPECT().MarkUsed(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req nullifierService.MarkUsedRequest) (*nullifierModels.Record, error) {
			s.Equal("nf-intent", req.Nullifier)
			s.Equal(nullifierModels.ProofTypeShieldIntent, req.ProofType)
			s.Equal(address, req.UsedBy)
			return &nullifierModels.Record{}, nil
		})
	s.proofs.EXPECT().MarkProofUsed(gomock.Any(), "nf-proof", address).Return(proof(true, complianceModels.RiskLow), nil)
	s.addresses.EXPECT().StartShielding(gomock.Any(), address).Return(
		&stealthModels.AddressView{StealthAddress: address, Status: stealthModels.StatusShielding}, nil)

	out, err := s.service.Shield(s.ctx, request())
	s.Require().NoError(err)
	s.Equal(stealthModels.StatusShielding, out.Address.Status)
	s.Equal(int64(1), out.PoolVersion)

	ct, err := elgamal.ParseCiphertext(out.EncryptedDeposit)
	s.Require().NoError(err)
	s.Equal(uint32(1500), elgamal.Decrypt(ct, s.keys.PrivateKey))

	total, err := s.service.AuditPoolBalance(s.ctx, s.keys.PrivateKey)
	s.Require().NoError(err)
	s.Equal(uint32(1500), total)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ShieldsStarted))
}

func (s *ShieldingServiceSuite) TestShieldRejectsBeforeSpending() {
	s.Run("address not funded", func() {
		view := funded(10)
		view.Status = stealthModels.StatusActive
		s.addresses.EXPECT().GetByAddress(gomock.Any(), address).Return(view, nil)

		_, err := s.service.Shield(s.ctx, request())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	s.Run("proof bound to another address", func() {
		p := proof(true, complianceModels.RiskLow)
		p.AddressCommitment = strings.Repeat("0", 64)
		s.expectPrechecks(10, p)

		_, err := s.service.Shield(s.ctx, request())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("non-compliant proof", func() {
		s.expectPrechecks(10, proof(false, complianceModels.RiskLow))

		_, err := s.service.Shield(s.ctx, request())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("critical risk blocks a compliant proof", func() {
		s.expectPrechecks(10, proof(true, complianceModels.RiskCritical))

		_, err := s.service.Shield(s.ctx, request())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("same nullifier for intent and proof", func() {
		req := request()
		req.IntentNullifier = req.ComplianceNullifier
		_, err := s.service.Shield(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Equal(2.0, testutil.ToFloat64(s.metrics.ShieldRejections.WithLabelValues("not_compliant")))
}

func (s *ShieldingServiceSuite) TestIntentReplayStopsTheShield() {
	s.expectPrechecks(10, proof(true, complianceModels.RiskLow))
	s.nullifiers.EXPECT().MarkUsed(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeReplayDetected, "nullifier already used"))

	_, err := s.service.Shield(s.ctx, request())
	s.True(dErrors.HasCode(err, dErrors.CodeReplayDetected))

	pool, err := s.service.PoolBalance(s.ctx)
	s.Require().NoError(err)
	s.Zero(pool.Version)
}

func (s *ShieldingServiceSuite) TestExpiredProofStopsTheShield() {
	s.expectPrechecks(10, proof(true, complianceModels.RiskLow))
	s.nullifiers.EXPECT().MarkUsed(gomock.Any(), gomock.Any()).Return(&nullifierModels.Record{}, nil)
	s.proofs.EXPECT().MarkProofUsed(gomock.Any(), "nf-proof", address).
		Return(nil, dErrors.New(dErrors.CodeExpired, "compliance proof expired"))

	_, err := s.service.Shield(s.ctx, request())
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
}

func (s *ShieldingServiceSuite) TestLapsedProofIsExpiredBeforeSpending() {
	lapsed := proof(true, complianceModels.RiskLow)
	lapsed.Status = complianceModels.StatusValid
	lapsed.ExpiresAt = requestcontext.Now(s.ctx).Add(-time.Minute)
	s.expectPrechecks(10, lapsed)
	// No intent nullifier is spent: MarkUsed has no expectation.
	s.proofs.EXPECT().MarkProofUsed(gomock.Any(), "nf-proof", address).
		Return(nil, dErrors.New(dErrors.CodeExpired, "compliance proof expired; re-screening required"))

	_, err := s.service.Shield(s.ctx, request())
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ShieldRejections.WithLabelValues("proof_expired")))
}

type conflictingStore struct {
	*store.InMemoryStore
	attempts int
}

func (c *conflictingStore) CompareAndSwap(context.Context, int64, *models.PoolBalance) error {
	c.attempts++
	return sentinel.ErrConflict
}

func (s *ShieldingServiceSuite) TestPoolContentionIsBounded() {
	contended := &conflictingStore{InMemoryStore: store.NewInMemoryStore()}
	svc, err := New(contended, s.nullifiers, s.proofs, s.addresses, "pool-1", s.keys.PublicKey,
		WithMetrics(s.metrics), WithMaxCASRetries(2))
	s.Require().NoError(err)

	s.expectPrechecks(10, proof(true, complianceModels.RiskLow))
	s.nullifiers.EXPECT().MarkUsed(gomock.Any(), gomock.Any()).Return(&nullifierModels.Record{}, nil)
	s.proofs.EXPECT().MarkProofUsed(gomock.Any(), gomock.Any(), gomock.Any()).Return(proof(true, complianceModels.RiskLow), nil)
	s.addresses.EXPECT().StartShielding(gomock.Any(), address).Return(funded(10), nil)

	_, err = svc.Shield(s.ctx, request())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(3, contended.attempts)
	s.Equal(3.0, testutil.ToFloat64(s.metrics.CASRetries))
}

func (s *ShieldingServiceSuite) TestConfirm() {
	s.addresses.EXPECT().ConfirmShield(gomock.Any(), address, "sig-1").Return(
		&stealthModels.AddressView{StealthAddress: address, Status: stealthModels.StatusShielded}, nil)

	view, err := s.service.Confirm(s.ctx, address, "sig-1")
	s.Require().NoError(err)
	s.Equal(stealthModels.StatusShielded, view.Status)

	_, err = s.service.Confirm(s.ctx, address, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ShieldingServiceSuite) TestAuditRejectsForeignKey() {
	other, err := elgamal.GenerateKeypair()
	s.Require().NoError(err)
	_, err = s.service.AuditPoolBalance(s.ctx, other.PrivateKey)
	s.True(dErrors.HasCode(err, dErrors.CodeEncryptionDomain))
}

func (s *ShieldingServiceSuite) TestPoolUnderAnotherKeyIsRejected() {
	other, err := elgamal.GenerateKeypair()
	s.Require().NoError(err)
	foreign, err := models.NewPool("pool-1", other.PublicKey, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Init(s.ctx, foreign))

	_, err = s.service.AuditPoolBalance(s.ctx, s.keys.PrivateKey)
	s.True(dErrors.HasCode(err, dErrors.CodeEncryptionDomain))
	s.True(errors.Is(err, elgamal.ErrKeyMismatch))
}
