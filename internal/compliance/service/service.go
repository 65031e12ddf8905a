// Package service implements the compliance proof store: attested screening
// verdicts, one per nullifier, consumed at most once.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"discard/internal/compliance/metrics"
	"discard/internal/compliance/models"
	nullifiermodels "discard/internal/nullifier/models"
	nullifierservice "discard/internal/nullifier/service"
	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	"discard/pkg/platform/sentinel"
	txcontext "discard/pkg/platform/tx"
	"discard/pkg/requestcontext"
)

const (
	defaultValidity = 24 * time.Hour
	defaultMaxValid = 7 * 24 * time.Hour
)

// Store is the persistence contract. Insert is insert-if-absent by nullifier;
// MarkUsed and Revoke are atomic conditional transitions.
type Store interface {
	Insert(ctx context.Context, proof *models.Proof) error
	FindByNullifier(ctx context.Context, nullifier string) (*models.Proof, error)
	MarkUsed(ctx context.Context, nullifier, usedFor string, now time.Time) (*models.Proof, error)
	Revoke(ctx context.Context, nullifier, reason string, now time.Time) (*models.Proof, error)
	ListByAddressCommitment(ctx context.Context, commitment string, limit int) ([]*models.Proof, error)
	ListByEnclave(ctx context.Context, mrEnclave string, limit int) ([]*models.Proof, error)
	ListValidByUser(ctx context.Context, userID id.UserID, now time.Time) ([]*models.Proof, error)
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

// Nullifiers records the proof's nullifier in the registry.
type Nullifiers interface {
	MarkUsed(ctx context.Context, req nullifierservice.MarkUsedRequest) (*nullifiermodels.Record, error)
}

// Addresses is the slice of the address lifecycle that screening drives.
type Addresses interface {
	Commitment(ctx context.Context, stealthAddress string) (commitment string, owner id.UserID, err error)
	RecordComplianceResult(ctx context.Context, stealthAddress string, passed bool, reason string) error
	Quarantine(ctx context.Context, stealthAddress, reason string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service stores and consumes compliance proofs.
type Service struct {
	store          Store
	nullifiers     Nullifiers
	addresses      Addresses
	db             *sql.DB
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	validity       time.Duration
	maxValidity    time.Duration
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

// WithNullifiers records every stored proof's nullifier in the registry.
func WithNullifiers(n Nullifiers) Option {
	return func(s *Service) {
		s.nullifiers = n
	}
}

// WithAddresses enables Screen.
func WithAddresses(a Addresses) Option {
	return func(s *Service) {
		s.addresses = a
	}
}

// WithDB runs proof and nullifier writes in one transaction when both
// stores are PostgreSQL-backed.
func WithDB(db *sql.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithValidity sets the default and maximum proof lifetime.
func WithValidity(defaultValidity, maxValidity time.Duration) Option {
	return func(s *Service) {
		if defaultValidity > 0 {
			s.validity = defaultValidity
		}
		if maxValidity > 0 {
			s.maxValidity = maxValidity
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tracer:      otel.Tracer("discard/compliance"),
		validity:    defaultValidity,
		maxValidity: defaultMaxValid,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreProofRequest carries a screening verdict. A zero ExpiresAt means the
// default validity from now.
type StoreProofRequest struct {
	Nullifier         string
	AddressCommitment string
	Compliant         bool
	RiskLevel         models.RiskLevel
	MrEnclave         string
	MrSigner          string
	AttestationQuote  []byte
	UserID            id.UserID
	ExpiresAt         time.Time
	UsedFor           string
}

// StoreProof records a verdict. A nullifier that already has a proof, or that
// the registry has already seen, fails with CodeReplayDetected.
func (s *Service) StoreProof(ctx context.Context, req StoreProofRequest) (*models.Proof, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.StoreProof",
		trace.WithAttributes(attribute.String("risk_level", string(req.RiskLevel))))
	defer span.End()

	now := requestcontext.Now(ctx)
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.validity)
	}
	if expiresAt.After(now.Add(s.maxValidity)) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("proof validity must not exceed %s", s.maxValidity))
	}

	proof := &models.Proof{
		Nullifier:         req.Nullifier,
		AddressCommitment: strings.ToLower(req.AddressCommitment),
		Compliant:         req.Compliant,
		RiskLevel:         req.RiskLevel,
		MrEnclave:         strings.ToLower(req.MrEnclave),
		MrSigner:          strings.ToLower(req.MrSigner),
		AttestationQuote:  req.AttestationQuote,
		UserID:            req.UserID,
		UsedFor:           req.UsedFor,
		CheckedAt:         now,
		ExpiresAt:         expiresAt,
		Status:            models.StatusValid,
	}
	if err := proof.Validate(now); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if s.nullifiers != nil {
			if _, err := s.nullifiers.MarkUsed(ctx, nullifierservice.MarkUsedRequest{
				Nullifier: proof.Nullifier,
				ProofType: nullifiermodels.ProofTypeCompliance,
				ExpiresAt: proof.ExpiresAt,
				UsedBy:    proof.AddressCommitment,
			}); err != nil {
				return err
			}
		}
		if err := s.store.Insert(ctx, proof); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeReplayDetected, "compliance proof already exists for nullifier")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store compliance proof")
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "store proof failed")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncStored(proof.Compliant, string(proof.RiskLevel))
	}
	s.logAudit(ctx, audit.EventComplianceProofStored, proof.Nullifier, "",
		"compliant", proof.Compliant,
		"risk_level", proof.RiskLevel,
		"mr_enclave", proof.MrEnclave,
	)
	return proof, nil
}

// MarkProofUsed consumes a valid proof. Expiry is checked here as well as by
// the sweep: a proof found past its expiry is flipped to expired and
// CodeExpired is returned.
func (s *Service) MarkProofUsed(ctx context.Context, nullifier, usedFor string) (*models.Proof, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.MarkProofUsed")
	defer span.End()

	if err := models.ValidateNullifier(nullifier); err != nil {
		return nil, err
	}
	if len(usedFor) > models.MaxUsedForLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("used_for must be %d characters or less", models.MaxUsedForLength))
	}

	proof, err := s.store.MarkUsed(ctx, nullifier, usedFor, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.translateConsumeError(ctx, nullifier, err)
	}

	if s.metrics != nil {
		s.metrics.IncUsed()
	}
	s.logAudit(ctx, audit.EventComplianceProofUsed, nullifier, "", "used_for", usedFor)
	return proof, nil
}

func (s *Service) translateConsumeError(ctx context.Context, nullifier string, err error) error {
	reason := ""
	var out error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		reason, out = "not_found", dErrors.New(dErrors.CodeNotFound, "compliance proof not found")
	case errors.Is(err, sentinel.ErrExpired):
		reason, out = "expired", dErrors.New(dErrors.CodeExpired, "compliance proof expired; re-screening required")
		if s.metrics != nil {
			s.metrics.AddExpired("consumption", 1)
		}
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		reason, out = "used", dErrors.New(dErrors.CodeReplayDetected, "compliance proof already used")
	case errors.Is(err, sentinel.ErrInvalidState):
		reason, out = "revoked", dErrors.New(dErrors.CodeInvalidStateTransition, "compliance proof revoked")
	case errors.Is(err, sentinel.ErrConflict):
		reason, out = "conflict", dErrors.New(dErrors.CodeConflict, "compliance proof changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume compliance proof")
	}
	if s.metrics != nil {
		s.metrics.IncConsumeRejected(reason)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "compliance proof consumption rejected",
			"nullifier", nullifier,
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return out
}

// RevokeProof invalidates a verdict after the fact. Anything the proof
// already authorized stays as it is; the audit event is the re-screening
// signal.
func (s *Service) RevokeProof(ctx context.Context, nullifier, reason string) (*models.Proof, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.RevokeProof")
	defer span.End()

	if err := models.ValidateNullifier(nullifier); err != nil {
		return nil, err
	}
	if len(reason) > models.MaxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason must be %d characters or less", models.MaxReasonLength))
	}

	proof, err := s.store.Revoke(ctx, nullifier, reason, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance proof not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "compliance proof already revoked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke compliance proof")
	}

	if s.metrics != nil {
		s.metrics.IncRevoked()
	}
	s.logAudit(ctx, audit.EventComplianceProofRevoked, nullifier, reason,
		"address_commitment", proof.AddressCommitment,
		"was_used", proof.UsedAt != nil,
	)
	return proof, nil
}

func (s *Service) GetByNullifier(ctx context.Context, nullifier string) (*models.Proof, error) {
	if err := models.ValidateNullifier(nullifier); err != nil {
		return nil, err
	}
	proof, err := s.store.FindByNullifier(ctx, nullifier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance proof not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance proof")
	}
	return proof, nil
}

// ListByAddressCommitment returns proofs for an address, newest first.
func (s *Service) ListByAddressCommitment(ctx context.Context, commitment string, limit int) ([]*models.Proof, error) {
	commitment = strings.ToLower(commitment)
	if err := models.ValidateHex32("commitment", commitment); err != nil {
		return nil, err
	}
	proofs, err := s.store.ListByAddressCommitment(ctx, commitment, models.ClampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance proofs")
	}
	return proofs, nil
}

// ListByEnclave returns proofs produced by one enclave build, newest first.
func (s *Service) ListByEnclave(ctx context.Context, mrEnclave string, limit int) ([]*models.Proof, error) {
	mrEnclave = strings.ToLower(mrEnclave)
	if err := models.ValidateHex32("mr_enclave", mrEnclave); err != nil {
		return nil, err
	}
	proofs, err := s.store.ListByEnclave(ctx, mrEnclave, models.ClampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance proofs")
	}
	return proofs, nil
}

// ListValidForUser returns the user's proofs that are valid and unexpired now.
func (s *Service) ListValidForUser(ctx context.Context, userID id.UserID) ([]*models.Proof, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	proofs, err := s.store.ListValidByUser(ctx, userID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance proofs")
	}
	return proofs, nil
}

// ExpireProofs sweeps valid proofs past their expiry to expired.
func (s *Service) ExpireProofs(ctx context.Context) (int, error) {
	n, err := s.store.MarkExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire compliance proofs")
	}
	if s.metrics != nil {
		s.metrics.AddExpired("sweep", n)
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "compliance proofs expired", "count", n)
	}
	return n, nil
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
