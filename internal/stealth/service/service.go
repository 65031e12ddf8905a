// Package service runs the stealth receive address lifecycle: minting
// single-use addresses, recording deposits and driving each address to
// shielded, quarantined or expired.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"discard/internal/elgamal"
	"discard/internal/stealth/cache"
	"discard/internal/stealth/keys"
	"discard/internal/stealth/metrics"
	"discard/internal/stealth/models"
	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	"discard/pkg/platform/sentinel"
	"discard/pkg/requestcontext"
)

const (
	defaultAddressTTL     = 30 * time.Minute
	defaultGracePeriod    = 30 * time.Minute
	defaultHistoryLimit   = 20
	maxHistoryLimit       = 100
	maxTxRefLength        = 128
	maxTokenRefLength     = 64
	maxReasonLength       = 512
	maxSenderAddressBytes = 128
)

// Store is the persistence contract. Every mutation is a conditional write
// gated on the current status.
type Store interface {
	Create(ctx context.Context, a *models.ReceiveAddress) error
	FindByAddress(ctx context.Context, address string) (*models.ReceiveAddress, error)
	FindCurrentByUser(ctx context.Context, userID id.UserID, now time.Time) (*models.ReceiveAddress, error)
	ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.ReceiveAddress, error)
	RecordDeposit(ctx context.Context, address string, d models.Deposit, now time.Time) (*models.ReceiveAddress, error)
	StartShielding(ctx context.Context, address string, now time.Time) (*models.ReceiveAddress, error)
	ConfirmShield(ctx context.Context, address, txSig string, now time.Time) (*models.ReceiveAddress, error)
	Quarantine(ctx context.Context, address, reason string, now time.Time) (*models.ReceiveAddress, error)
	RecordCompliance(ctx context.Context, address string, passed bool, reason string, now time.Time) (*models.ReceiveAddress, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DepositEvent is what the chain monitor reports for a transfer it observed.
type DepositEvent struct {
	StealthAddress string
	SenderAddress  string
	TxRef          string
	Amount         uint64
	TokenRef       string
}

// Service owns receive addresses and their seeds.
type Service struct {
	store          Store
	sealer         *keys.SeedSealer
	commitmentSalt []byte
	cache          *cache.Cache
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	addressTTL     time.Duration
	gracePeriod    time.Duration
	historyDefault int
	historyMax     int
	mint           func() (*keys.Stealth, error)
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

// WithCache lets deposit intake reject unknown addresses without a store read.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithCommitmentSalt(salt []byte) Option {
	return func(s *Service) {
		s.commitmentSalt = append([]byte(nil), salt...)
	}
}

// WithLifetimes sets how long a new address is advertised and how much
// longer it still accepts a late deposit.
func WithLifetimes(ttl, grace time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.addressTTL = ttl
		}
		if grace >= 0 {
			s.gracePeriod = grace
		}
	}
}

func WithHistoryLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.historyDefault = defaultLimit
		}
		if maxLimit > 0 {
			s.historyMax = maxLimit
		}
	}
}

func New(store Store, sealer *keys.SeedSealer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("stealth store is required")
	}
	if sealer == nil {
		return nil, errors.New("seed sealer is required")
	}
	s := &Service{
		store:          store,
		sealer:         sealer,
		tracer:         otel.Tracer("discard/stealth"),
		addressTTL:     defaultAddressTTL,
		gracePeriod:    defaultGracePeriod,
		historyDefault: defaultHistoryLimit,
		historyMax:     maxHistoryLimit,
		mint:           keys.NewStealth,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.historyDefault > s.historyMax {
		s.historyDefault = s.historyMax
	}
	return s, nil
}

// Generate mints a fresh single-use address for userID. Earlier addresses
// keep accepting deposits until their own grace window closes.
func (s *Service) Generate(ctx context.Context, userID id.UserID) (*models.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.Generate")
	defer span.End()

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}

	minted, err := s.mint()
	if err != nil {
		span.SetStatus(codes.Error, "mint failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate stealth address")
	}
	sealed, err := s.sealer.Seal(minted.Seed, minted.Address)
	clear(minted.Seed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal stealth seed")
	}

	now := requestcontext.Now(ctx)
	expiresAt := now.Add(s.addressTTL)
	a := &models.ReceiveAddress{
		ID:             id.AddressID(uuid.New()),
		UserID:         userID,
		StealthAddress: minted.Address,
		SealedSeed:     sealed,
		Status:         models.StatusActive,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		GraceExpiresAt: expiresAt.Add(s.gracePeriod),
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		span.SetStatus(codes.Error, "create failed")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "stealth address collision")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store stealth address")
	}

	if s.cache != nil {
		s.cache.Put(a.StealthAddress, cache.Entry{Owner: userID, Known: true})
	}
	if s.metrics != nil {
		s.metrics.IncGenerated()
	}
	s.logAudit(ctx, audit.EventAddressGenerated, a.StealthAddress, "",
		"user_id", userID.String(),
		"grace_expires_at", a.GraceExpiresAt,
	)
	return a.View(), nil
}

// GetCurrent returns the user's newest address that can still receive or
// holds an unresolved deposit.
func (s *Service) GetCurrent(ctx context.Context, userID id.UserID) (*models.AddressView, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	a, err := s.store.FindCurrentByUser(ctx, userID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no current stealth address")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current stealth address")
	}
	return a.View(), nil
}

// History lists the user's addresses most recent first. A limit of zero
// means the default; anything above the maximum is clamped.
func (s *Service) History(ctx context.Context, userID id.UserID, limit int) ([]*models.AddressView, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if limit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	if limit == 0 {
		limit = s.historyDefault
	}
	if limit > s.historyMax {
		limit = s.historyMax
	}
	addresses, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list stealth addresses")
	}
	out := make([]*models.AddressView, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, a.View())
	}
	return out, nil
}

// GetByAddress loads one address by its public form.
func (s *Service) GetByAddress(ctx context.Context, address string) (*models.AddressView, error) {
	a, err := s.find(ctx, address)
	if err != nil {
		return nil, err
	}
	return a.View(), nil
}

// RecordDeposit moves an active address to funded. Addresses whose grace
// window has closed but that the sweep has not reached yet are expired here
// and rejected with CodeExpired.
func (s *Service) RecordDeposit(ctx context.Context, ev DepositEvent) (*models.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.RecordDeposit",
		trace.WithAttributes(attribute.String("token_ref", ev.TokenRef)))
	defer span.End()

	if err := validateDeposit(ev); err != nil {
		s.rejectDeposit("validation")
		return nil, err
	}

	if s.cache != nil {
		if entry, ok := s.cache.Get(ev.StealthAddress); ok && !entry.Known {
			s.cacheLookup("negative_hit")
			s.rejectDeposit("not_found")
			return nil, dErrors.New(dErrors.CodeNotFound, "stealth address not found")
		} else if ok {
			s.cacheLookup("hit")
		} else {
			s.cacheLookup("miss")
		}
	}

	a, err := s.store.RecordDeposit(ctx, ev.StealthAddress, models.Deposit{
		SenderAddress: ev.SenderAddress,
		TxRef:         ev.TxRef,
		Amount:        ev.Amount,
		TokenRef:      ev.TokenRef,
	}, requestcontext.Now(ctx))
	if err != nil {
		span.SetStatus(codes.Error, "deposit rejected")
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			if s.cache != nil {
				s.cache.Put(ev.StealthAddress, cache.Entry{Known: false})
			}
			s.rejectDeposit("not_found")
			return nil, dErrors.New(dErrors.CodeNotFound, "stealth address not found")
		case errors.Is(err, sentinel.ErrExpired):
			s.rejectDeposit("expired")
			if s.metrics != nil {
				s.metrics.AddExpired("deposit", 1)
				s.metrics.IncTransition(string(models.StatusExpired))
			}
			s.logAudit(ctx, audit.EventAddressesExpired, ev.StealthAddress, "deposit after grace window",
				"tx_ref", ev.TxRef)
			return nil, dErrors.New(dErrors.CodeExpired, "stealth address expired")
		}
		return nil, s.translateTransitionError(err, "not_active")
	}

	if s.cache != nil {
		s.cache.Put(a.StealthAddress, cache.Entry{Owner: a.UserID, Known: true})
	}
	s.transitioned(a.Status)
	s.logAudit(ctx, audit.EventDepositRecorded, a.StealthAddress, "",
		"user_id", a.UserID.String(),
		"tx_ref", ev.TxRef,
		"token_ref", ev.TokenRef,
	)
	return a.View(), nil
}

// StartShielding records that a shield transaction was submitted.
func (s *Service) StartShielding(ctx context.Context, address string) (*models.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.StartShielding")
	defer span.End()

	if err := keys.ValidateAddress(address); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	a, err := s.store.StartShielding(ctx, address, requestcontext.Now(ctx))
	if err != nil {
		span.SetStatus(codes.Error, "start shielding failed")
		return nil, s.translateTransitionError(err, "")
	}
	s.transitioned(a.Status)
	s.logAudit(ctx, audit.EventShieldStarted, address, "", "user_id", a.UserID.String())
	return a.View(), nil
}

// ConfirmShield records the confirmed shield transaction. Terminal.
func (s *Service) ConfirmShield(ctx context.Context, address, txSig string) (*models.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.ConfirmShield")
	defer span.End()

	if err := keys.ValidateAddress(address); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	if txSig == "" || len(txSig) > maxTxRefLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tx_sig is required and must be %d characters or less", maxTxRefLength))
	}
	a, err := s.store.ConfirmShield(ctx, address, txSig, requestcontext.Now(ctx))
	if err != nil {
		span.SetStatus(codes.Error, "confirm shield failed")
		return nil, s.translateTransitionError(err, "")
	}
	s.transitioned(a.Status)
	s.logAudit(ctx, audit.EventShieldConfirmed, address, "",
		"user_id", a.UserID.String(),
		"tx_sig", txSig,
	)
	return a.View(), nil
}

// Quarantine parks an active or funded address after a failed screening.
// Terminal.
func (s *Service) Quarantine(ctx context.Context, address, reason string) (*models.AddressView, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.Quarantine")
	defer span.End()

	if err := keys.ValidateAddress(address); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	if len(reason) > maxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason must be %d characters or less", maxReasonLength))
	}
	a, err := s.store.Quarantine(ctx, address, reason, requestcontext.Now(ctx))
	if err != nil {
		span.SetStatus(codes.Error, "quarantine failed")
		return nil, s.translateTransitionError(err, "")
	}
	s.transitioned(a.Status)
	s.logAudit(ctx, audit.EventAddressQuarantined, address, reason, "user_id", a.UserID.String())
	return a.View(), nil
}

// RecordComplianceResult notes a screening result on the address without
// moving its status.
func (s *Service) RecordComplianceResult(ctx context.Context, address string, passed bool, reason string) (*models.AddressView, error) {
	if err := keys.ValidateAddress(address); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	if len(reason) > maxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason must be %d characters or less", maxReasonLength))
	}
	a, err := s.store.RecordCompliance(ctx, address, passed, reason, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "stealth address not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record compliance result")
	}
	return a.View(), nil
}

// ExpireStale sweeps active addresses past their grace window. Funded and
// shielding addresses are left alone.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.store.ExpireStale(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire stealth addresses")
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.AddExpired("sweep", n)
			s.metrics.Transitions.WithLabelValues(string(models.StatusExpired)).Add(float64(n))
		}
		s.logAudit(ctx, audit.EventAddressesExpired, "", "grace window elapsed", "count", n)
	}
	return n, nil
}

// Commitment returns the salted commitment that links compliance proofs to
// the address, plus the address owner.
func (s *Service) Commitment(ctx context.Context, address string) (string, id.UserID, error) {
	a, err := s.find(ctx, address)
	if err != nil {
		return "", id.UserID{}, err
	}
	return keys.AddressCommitment(a.StealthAddress, s.commitmentSalt), a.UserID, nil
}

// RecoverKeypair unseals the address seed and expands it into the signing
// key. Server-internal only.
func (s *Service) RecoverKeypair(ctx context.Context, address string) (ed25519.PrivateKey, error) {
	ctx, span := s.tracer.Start(ctx, "stealth.RecoverKeypair")
	defer span.End()

	a, err := s.find(ctx, address)
	if err != nil {
		return nil, err
	}
	seed, err := s.sealer.Open(a.SealedSeed, a.StealthAddress)
	if err != nil {
		span.SetStatus(codes.Error, "unseal failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open sealed seed")
	}
	defer clear(seed)
	priv, err := keys.PrivateKey(seed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive stealth key")
	}
	derived, err := keys.AddressFromSeed(seed)
	if err != nil || derived != a.StealthAddress {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sealed seed does not match stealth address")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "stealth keypair recovered",
			"stealth_address", address,
			"status", a.Status,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return priv, nil
}

func (s *Service) find(ctx context.Context, address string) (*models.ReceiveAddress, error) {
	if err := keys.ValidateAddress(address); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	a, err := s.store.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "stealth address not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load stealth address")
	}
	return a, nil
}

func (s *Service) translateTransitionError(err error, rejectReason string) error {
	var out error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		out = dErrors.New(dErrors.CodeNotFound, "stealth address not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		out = dErrors.Wrap(err, dErrors.CodeInvalidStateTransition, "stealth address is not in a state that allows this")
	case errors.Is(err, sentinel.ErrConflict):
		out = dErrors.New(dErrors.CodeConflict, "stealth address changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "stealth address transition failed")
	}
	if rejectReason != "" {
		s.rejectDeposit(rejectReason)
	}
	return out
}

func validateDeposit(ev DepositEvent) error {
	if err := keys.ValidateAddress(ev.StealthAddress); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid stealth address")
	}
	if ev.Amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if ev.Amount > uint64(elgamal.MaxAmount) {
		return dErrors.New(dErrors.CodeEncryptionDomain, fmt.Sprintf("amount exceeds the confidential range of %d", elgamal.MaxAmount))
	}
	if ev.TxRef == "" || len(ev.TxRef) > maxTxRefLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tx_ref is required and must be %d characters or less", maxTxRefLength))
	}
	if len(ev.TokenRef) > maxTokenRefLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("token_ref must be %d characters or less", maxTokenRefLength))
	}
	if len(ev.SenderAddress) > maxSenderAddressBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("sender_address must be %d characters or less", maxSenderAddressBytes))
	}
	return nil
}

func (s *Service) transitioned(status models.Status) {
	if s.metrics != nil {
		s.metrics.IncTransition(string(status))
	}
}

func (s *Service) rejectDeposit(reason string) {
	if s.metrics != nil {
		s.metrics.IncDepositRejected(reason)
	}
}

func (s *Service) cacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncCacheLookup(result)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject, reason string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if reason != "" {
		attributes = append(attributes, "reason", reason)
	}
	args := append(attributes, "event", string(event), "log_type", "audit", "stealth_address", subject)
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
