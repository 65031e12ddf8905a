package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"discard/internal/compliance/models"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/audit"
	"discard/pkg/requestcontext"
)

// ScreeningResult is a screening service verdict for a deposit address.
type ScreeningResult struct {
	StealthAddress   string
	Nullifier        string
	Compliant        bool
	RiskLevel        models.RiskLevel
	MrEnclave        string
	MrSigner         string
	AttestationQuote []byte
	ValidFor         time.Duration
}

// Screening is the outcome of Screen.
type Screening struct {
	Proof       *models.Proof
	Passed      bool
	Quarantined bool
}

// Passes reports whether a verdict clears an address for shielding.
// Critical risk blocks even a compliant verdict.
func Passes(compliant bool, risk models.RiskLevel) bool {
	return compliant && risk != models.RiskCritical
}

// Screen stores the verdict as a proof bound to the address commitment,
// records the result on the address, and quarantines the address when the
// verdict does not pass.
//
// A failed quarantine returns the stored screening with Quarantined unset
// together with the error. The proof and the consumed nullifier stand, so a
// retry with the same nullifier reports a replay; callers read the verdict
// back with GetByNullifier.
func (s *Service) Screen(ctx context.Context, result ScreeningResult) (*Screening, error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Screen",
		trace.WithAttributes(
			attribute.Bool("compliant", result.Compliant),
			attribute.String("risk_level", string(result.RiskLevel)),
		))
	defer span.End()

	if s.addresses == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "screening is not configured")
	}
	if strings.TrimSpace(result.StealthAddress) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "stealth_address is required")
	}
	if result.ValidFor < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "valid_for must not be negative")
	}

	commitment, owner, err := s.addresses.Commitment(ctx, result.StealthAddress)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if result.ValidFor > 0 {
		expiresAt = requestcontext.Now(ctx).Add(result.ValidFor)
	}
	proof, err := s.StoreProof(ctx, StoreProofRequest{
		Nullifier:         result.Nullifier,
		AddressCommitment: commitment,
		Compliant:         result.Compliant,
		RiskLevel:         result.RiskLevel,
		MrEnclave:         result.MrEnclave,
		MrSigner:          result.MrSigner,
		AttestationQuote:  result.AttestationQuote,
		UserID:            owner,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return nil, err
	}

	passed := Passes(result.Compliant, result.RiskLevel)
	reason := fmt.Sprintf("screening compliant=%t risk=%s", result.Compliant, result.RiskLevel)
	if err := s.addresses.RecordComplianceResult(ctx, result.StealthAddress, passed, reason); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventScreeningRecorded, result.StealthAddress, reason,
		"nullifier", proof.Nullifier,
		"passed", passed,
	)

	out := &Screening{Proof: proof, Passed: passed}
	if passed {
		return out, nil
	}
	if err := s.addresses.Quarantine(ctx, result.StealthAddress, reason); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to quarantine address after failed screening",
				"nullifier", proof.Nullifier,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return out, err
	}
	out.Quarantined = true
	return out, nil
}
