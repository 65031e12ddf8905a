// Package service coordinates shielding: it spends a shield intent and a
// compliance proof, credits the encrypted deposit to the pool balance and
// moves the receive address to shielding.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	complianceModels "discard/internal/compliance/models"
	complianceService "discard/internal/compliance/service"
	"discard/internal/elgamal"
	nullifierModels "discard/internal/nullifier/models"
	nullifierService "discard/internal/nullifier/service"
	"discard/internal/shielding/metrics"
	"discard/internal/shielding/models"
	stealthModels "discard/internal/stealth/models"
	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"
	"discard/pkg/requestcontext"
)

const (
	defaultIntentValidity = 24 * time.Hour
	defaultMaxCASRetries  = 5
	maxNullifierLength    = 128
	maxTxSigLength        = 128
)

// Store persists the pool balance. CompareAndSwap fails with
// sentinel.ErrConflict when the stored version is no longer expected.
type Store interface {
	Init(ctx context.Context, p *models.PoolBalance) error
	Get(ctx context.Context, poolID string) (*models.PoolBalance, error)
	CompareAndSwap(ctx context.Context, expected int64, next *models.PoolBalance) error
}

// Nullifiers spends the shield intent.
type Nullifiers interface {
	MarkUsed(ctx context.Context, req nullifierService.MarkUsedRequest) (*nullifierModels.Record, error)
}

// Proofs reads and consumes compliance proofs.
type Proofs interface {
	GetByNullifier(ctx context.Context, nullifier string) (*complianceModels.Proof, error)
	MarkProofUsed(ctx context.Context, nullifier, usedFor string) (*complianceModels.Proof, error)
}

// Addresses is the slice of the address lifecycle shielding drives.
type Addresses interface {
	GetByAddress(ctx context.Context, address string) (*stealthModels.AddressView, error)
	Commitment(ctx context.Context, address string) (string, id.UserID, error)
	StartShielding(ctx context.Context, address string) (*stealthModels.AddressView, error)
	ConfirmShield(ctx context.Context, address, txSig string) (*stealthModels.AddressView, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ShieldRequest asks to shield the deposit sitting on StealthAddress.
type ShieldRequest struct {
	StealthAddress      string
	IntentNullifier     string
	ComplianceNullifier string
}

// Service is the shielding submitter.
type Service struct {
	store          Store
	nullifiers     Nullifiers
	proofs         Proofs
	addresses      Addresses
	poolID         string
	poolKey        *elgamal.PublicKey
	db             *sql.DB
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	intentValidity time.Duration
	maxCASRetries  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDB runs every write of a shield in one transaction.
func WithDB(db *sql.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

func WithIntentValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.intentValidity = d
		}
	}
}

func WithMaxCASRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCASRetries = n
		}
	}
}

func New(store Store, nullifiers Nullifiers, proofs Proofs, addresses Addresses, poolID string, poolKey *elgamal.PublicKey, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("pool store is required")
	case nullifiers == nil || proofs == nil || addresses == nil:
		return nil, errors.New("nullifiers, proofs and addresses are required")
	case poolID == "":
		return nil, errors.New("pool id is required")
	case poolKey == nil:
		return nil, errors.New("pool public key is required")
	}
	s := &Service{
		store:          store,
		nullifiers:     nullifiers,
		proofs:         proofs,
		addresses:      addresses,
		poolID:         poolID,
		poolKey:        poolKey,
		tracer:         otel.Tracer("discard/shielding"),
		intentValidity: defaultIntentValidity,
		maxCASRetries:  defaultMaxCASRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Shield spends the intent and the compliance proof, credits the deposit to
// the pool and moves the address to shielding. It returns a fresh
// rerandomization of the encrypted deposit for the shield transaction.
func (s *Service) Shield(ctx context.Context, req ShieldRequest) (*models.Shield, error) {
	ctx, span := s.tracer.Start(ctx, "shielding.Shield")
	defer span.End()
	start := time.Now()

	if err := validateShieldRequest(req); err != nil {
		s.reject("validation")
		return nil, err
	}

	addr, err := s.addresses.GetByAddress(ctx, req.StealthAddress)
	if err != nil {
		s.reject("address")
		return nil, err
	}
	if addr.Status != stealthModels.StatusFunded {
		s.reject("not_funded")
		return nil, dErrors.New(dErrors.CodeInvalidStateTransition, fmt.Sprintf("address is %s; only funded addresses can be shielded", addr.Status))
	}
	if addr.DepositAmount == nil || *addr.DepositAmount > uint64(elgamal.MaxAmount) {
		s.reject("amount")
		return nil, dErrors.New(dErrors.CodeEncryptionDomain, "deposit amount is outside the confidential range")
	}
	if err := s.checkProof(ctx, req); err != nil {
		return nil, err
	}

	deposit, err := elgamal.Encrypt(uint32(*addr.DepositAmount), s.poolKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionDomain, "failed to encrypt deposit")
	}

	now := requestcontext.Now(ctx)
	var (
		shielding *stealthModels.AddressView
		pool      *models.PoolBalance
	)
	err = s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.nullifiers.MarkUsed(ctx, nullifierService.MarkUsedRequest{
			Nullifier: req.IntentNullifier,
			ProofType: nullifierModels.ProofTypeShieldIntent,
			ExpiresAt: now.Add(s.intentValidity),
			UsedBy:    req.StealthAddress,
		}); err != nil {
			s.reject("intent")
			return err
		}
		if _, err := s.proofs.MarkProofUsed(ctx, req.ComplianceNullifier, req.StealthAddress); err != nil {
			s.reject("proof")
			return err
		}
		// The conditional transition admits one shield per address, so the
		// pool is credited at most once per deposit.
		var err error
		shielding, err = s.addresses.StartShielding(ctx, req.StealthAddress)
		if err != nil {
			s.reject("transition")
			return err
		}
		pool, err = s.credit(ctx, deposit)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, "shield failed")
		return nil, err
	}

	blinded, err := elgamal.Rerandomize(deposit, s.poolKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionDomain, "failed to rerandomize deposit")
	}
	raw, err := blinded.MarshalBinary()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode deposit")
	}

	if s.metrics != nil {
		s.metrics.IncStarted()
		s.metrics.ObserveShield(time.Since(start).Seconds())
	}
	s.logAudit(ctx, audit.EventPoolCredited, s.poolID, "",
		"stealth_address", req.StealthAddress,
		"pool_version", pool.Version,
		"intent_nullifier", req.IntentNullifier,
	)
	return &models.Shield{Address: shielding, EncryptedDeposit: raw, PoolVersion: pool.Version}, nil
}

// checkProof makes sure the proof exists, clears the deposit and belongs to
// this address before anything is spent.
func (s *Service) checkProof(ctx context.Context, req ShieldRequest) error {
	proof, err := s.proofs.GetByNullifier(ctx, req.ComplianceNullifier)
	if err != nil {
		s.reject("proof")
		return err
	}
	commitment, _, err := s.addresses.Commitment(ctx, req.StealthAddress)
	if err != nil {
		s.reject("address")
		return err
	}
	if proof.AddressCommitment != commitment {
		s.reject("proof_binding")
		return dErrors.New(dErrors.CodeForbidden, "compliance proof belongs to another address")
	}
	if !complianceService.Passes(proof.Compliant, proof.RiskLevel) {
		s.reject("not_compliant")
		return dErrors.New(dErrors.CodeForbidden, "compliance proof does not clear the deposit")
	}
	if proof.Status == complianceModels.StatusValid && proof.IsExpired(requestcontext.Now(ctx)) {
		s.reject("proof_expired")
		// Consumed outside the shield transaction so the flip to expired
		// commits even though the shield is rejected.
		if _, err := s.proofs.MarkProofUsed(ctx, req.ComplianceNullifier, req.StealthAddress); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeExpired, "compliance proof expired; re-screening required")
	}
	return nil
}

// credit adds ct to the pool with bounded optimistic retries.
func (s *Service) credit(ctx context.Context, ct *elgamal.Ciphertext) (*models.PoolBalance, error) {
	for attempt := 0; attempt <= s.maxCASRetries; attempt++ {
		pool, err := s.loadPool(ctx, true)
		if err != nil {
			return nil, err
		}
		next, err := pool.Credit(s.poolKey, ct, requestcontext.Now(ctx))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeEncryptionDomain, "failed to add deposit to pool balance")
		}
		err = s.store.CompareAndSwap(ctx, pool.Version, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pool balance")
		}
		if s.metrics != nil {
			s.metrics.IncCASRetry()
		}
	}
	s.reject("contention")
	return nil, dErrors.New(dErrors.CodeConflict, "pool balance is contended; retry the shield")
}

// loadPool reads the pool, creating the empty pool on first use when create
// is set.
func (s *Service) loadPool(ctx context.Context, create bool) (*models.PoolBalance, error) {
	pool, err := s.store.Get(ctx, s.poolID)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pool balance")
	}
	empty, err := models.NewPool(s.poolID, s.poolKey, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build empty pool")
	}
	if !create {
		return empty, nil
	}
	if err := s.store.Init(ctx, empty); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pool balance")
	}
	pool, err = s.store.Get(ctx, s.poolID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pool balance")
	}
	return pool, nil
}

// Confirm records the confirmed shield transaction on the address.
func (s *Service) Confirm(ctx context.Context, address, txSig string) (*stealthModels.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "shielding.Confirm")
	defer span.End()

	if txSig == "" || len(txSig) > maxTxSigLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tx_sig is required and must be %d characters or less", maxTxSigLength))
	}
	view, err := s.addresses.ConfirmShield(ctx, address, txSig)
	if err != nil {
		span.SetStatus(codes.Error, "confirm failed")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncConfirmed()
	}
	return view, nil
}

// PoolBalance returns the encrypted pool total. A pool nothing has been
// shielded into yet reads as the empty pool.
func (s *Service) PoolBalance(ctx context.Context) (*models.PoolBalance, error) {
	return s.loadPool(ctx, false)
}

// AuditPoolBalance decrypts the pool total with the key holder's private
// key. Totals above MaxAmount do not decode meaningfully.
func (s *Service) AuditPoolBalance(ctx context.Context, priv *elgamal.PrivateKey) (uint32, error) {
	if priv == nil || !priv.PublicKey().Equal(s.poolKey) {
		return 0, dErrors.New(dErrors.CodeEncryptionDomain, "private key does not match the pool key")
	}
	pool, err := s.loadPool(ctx, false)
	if err != nil {
		return 0, err
	}
	ct, err := pool.Ciphertext(s.poolKey)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeEncryptionDomain, "pool balance is not decodable")
	}
	total := elgamal.Decrypt(ct, priv)
	s.logAudit(ctx, audit.EventPoolBalanceAudited, s.poolID, "",
		"pool_version", pool.Version,
		"deposit_count", pool.DepositCount,
	)
	return total, nil
}

// PoolKey is the public key deposits are encrypted under.
func (s *Service) PoolKey() *elgamal.PublicKey {
	return s.poolKey
}

func validateShieldRequest(req ShieldRequest) error {
	if req.StealthAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "stealth_address is required")
	}
	if req.IntentNullifier == "" || len(req.IntentNullifier) > maxNullifierLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("intent_nullifier is required and must be %d characters or less", maxNullifierLength))
	}
	if req.ComplianceNullifier == "" || len(req.ComplianceNullifier) > maxNullifierLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("compliance_nullifier is required and must be %d characters or less", maxNullifierLength))
	}
	if req.IntentNullifier == req.ComplianceNullifier {
		return dErrors.New(dErrors.CodeValidation, "intent and compliance nullifiers must differ")
	}
	return nil
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(reason)
	}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return txcontext.Run(ctx, s.db, fn)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject, reason string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if reason != "" {
		attributes = append(attributes, "reason", reason)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Subject:   subject,
		Action:    string(event),
		Reason:    reason,
		RequestID: requestID,
	})
}
