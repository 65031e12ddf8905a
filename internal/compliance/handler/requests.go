package handler

import (
	"encoding/base64"
	"strings"
	"time"

	"discard/internal/compliance/models"
	dErrors "discard/pkg/domain-errors"
)

// ScreeningRequest is the body of POST /internal/compliance/screenings.
type ScreeningRequest struct {
	StealthAddress   string `json:"stealth_address"`
	Nullifier        string `json:"nullifier"`
	Compliant        *bool  `json:"compliant"`
	RiskLevel        string `json:"risk_level"`
	MrEnclave        string `json:"mr_enclave"`
	MrSigner         string `json:"mr_signer,omitempty"`
	AttestationQuote string `json:"attestation_quote,omitempty"`
	ValidForSeconds  int64  `json:"valid_for_seconds,omitempty"`

	parsedRisk  models.RiskLevel
	parsedQuote []byte
}

// Validate implements httputil.Validatable.
func (r *ScreeningRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.StealthAddress = strings.TrimSpace(r.StealthAddress)
	r.Nullifier = strings.TrimSpace(r.Nullifier)
	r.MrEnclave = strings.ToLower(strings.TrimSpace(r.MrEnclave))
	r.MrSigner = strings.ToLower(strings.TrimSpace(r.MrSigner))

	if r.StealthAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "stealth_address is required")
	}
	if err := models.ValidateNullifier(r.Nullifier); err != nil {
		return err
	}
	if r.Compliant == nil {
		return dErrors.New(dErrors.CodeValidation, "compliant is required")
	}
	risk, err := models.ParseRiskLevel(r.RiskLevel)
	if err != nil {
		return err
	}
	r.parsedRisk = risk
	if r.ValidForSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "valid_for_seconds must not be negative")
	}
	if r.AttestationQuote != "" {
		quote, err := base64.StdEncoding.DecodeString(r.AttestationQuote)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "attestation_quote must be base64")
		}
		r.parsedQuote = quote
	}
	return nil
}

func (r *ScreeningRequest) ParsedRiskLevel() models.RiskLevel { return r.parsedRisk }

func (r *ScreeningRequest) ParsedQuote() []byte { return r.parsedQuote }

func (r *ScreeningRequest) ValidFor() time.Duration {
	return time.Duration(r.ValidForSeconds) * time.Second
}

// RevokeRequest is the body of POST /internal/compliance/proofs/{nullifier}/revoke.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > models.MaxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
