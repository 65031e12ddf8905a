// Package service implements the nullifier registry: a set of one-time tokens
// that, once consumed, can never be consumed again.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"discard/internal/nullifier/metrics"
	"discard/internal/nullifier/models"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	"discard/pkg/platform/sentinel"
	"discard/pkg/requestcontext"
)

// Store is the persistence contract. Insert must be an atomic
// insert-if-absent returning sentinel.ErrAlreadyUsed on conflict.
type Store interface {
	Insert(ctx context.Context, record *models.Record) error
	Find(ctx context.Context, nullifier string) (*models.Record, error)
	Exists(ctx context.Context, nullifier string) (bool, error)
	ExistsBatch(ctx context.Context, nullifiers []string) (map[string]bool, error)
	MarkExpired(ctx context.Context, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service validates and records nullifier consumption.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
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

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: otel.Tracer("discard/nullifier"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkUsedRequest describes a consumption.
type MarkUsedRequest struct {
	Nullifier string
	ProofType models.ProofType
	ExpiresAt time.Time
	ProofHash string
	UsedBy    string
	Context   map[string]string
}

// MarkUsed consumes a nullifier. A second consumption of the same nullifier,
// by any caller and regardless of expiry, fails with CodeReplayDetected.
func (s *Service) MarkUsed(ctx context.Context, req MarkUsedRequest) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "nullifier.MarkUsed",
		trace.WithAttributes(attribute.String("proof_type", string(req.ProofType))))
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveMarkUsed(start)
	}

	now := requestcontext.Now(ctx)
	record, err := models.NewRecord(req.Nullifier, req.ProofType, req.ExpiresAt, now)
	if err != nil {
		return nil, err
	}
	record.ProofHash = req.ProofHash
	record.UsedBy = req.UsedBy
	if len(req.Context) > 0 {
		record.Context = make(map[string]string, len(req.Context))
		for k, v := range req.Context {
			record.Context[k] = v
		}
	}

	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			if s.metrics != nil {
				s.metrics.IncReplay(string(req.ProofType))
			}
			s.logAudit(ctx, audit.EventNullifierReplayRejected, req.Nullifier,
				"proof_type", req.ProofType,
			)
			return nil, dErrors.New(dErrors.CodeReplayDetected, "nullifier already used")
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record nullifier")
	}

	if s.metrics != nil {
		s.metrics.IncConsumed(string(req.ProofType))
	}
	s.logAudit(ctx, audit.EventNullifierConsumed, req.Nullifier,
		"proof_type", req.ProofType,
	)
	return record, nil
}

// IsUsed reports whether the nullifier has ever been consumed.
func (s *Service) IsUsed(ctx context.Context, nullifier string) (bool, error) {
	if err := models.ValidateNullifier(nullifier); err != nil {
		return false, err
	}
	used, err := s.store.Exists(ctx, nullifier)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check nullifier")
	}
	return used, nil
}

// Get returns the record for a consumed nullifier.
func (s *Service) Get(ctx context.Context, nullifier string) (*models.Record, error) {
	if err := models.ValidateNullifier(nullifier); err != nil {
		return nil, err
	}
	record, err := s.store.Find(ctx, nullifier)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "nullifier not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load nullifier")
	}
	return record, nil
}

// CheckBatch evaluates each nullifier independently, preserving input order.
// Duplicates in the input yield duplicate results.
func (s *Service) CheckBatch(ctx context.Context, nullifiers []string) ([]models.BatchResult, error) {
	if len(nullifiers) == 0 {
		return []models.BatchResult{}, nil
	}
	if len(nullifiers) > models.MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch must contain at most %d nullifiers", models.MaxBatchSize))
	}
	for _, n := range nullifiers {
		if err := models.ValidateNullifier(n); err != nil {
			return nil, err
		}
	}

	used, err := s.store.ExistsBatch(ctx, nullifiers)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check nullifier batch")
	}
	results := make([]models.BatchResult, len(nullifiers))
	for i, n := range nullifiers {
		results[i] = models.BatchResult{Nullifier: n, Used: used[n]}
	}
	return results, nil
}

// MarkExpired moves active records past their expiry to expired. Expired
// nullifiers remain consumed.
func (s *Service) MarkExpired(ctx context.Context) (int, error) {
	n, err := s.store.MarkExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire nullifiers")
	}
	if s.metrics != nil {
		s.metrics.AddExpired(n)
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "nullifiers expired", "count", n)
	}
	return n, nil
}

// CleanupExpired deletes expired records whose expiry is older than
// now - olderThan. olderThan should be at least the longest proof validity
// so a consumed proof cannot be replayed while it is still valid.
func (s *Service) CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "retention must be positive")
	}
	cutoff := requestcontext.Now(ctx).Add(-olderThan)
	n, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clean up nullifiers")
	}
	if s.metrics != nil {
		s.metrics.AddDeleted(n)
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "expired nullifiers removed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
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
		RequestID: requestID,
	})
}
