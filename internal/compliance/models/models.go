package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/sentinel"
)

const (
	// MeasurementSize is the byte length of an enclave measurement (MRENCLAVE, MRSIGNER).
	MeasurementSize = 32

	MaxNullifierLength  = 128
	MaxAttestationQuote = 16 << 10
	MaxReasonLength     = 512
	MaxUsedForLength    = 128
	DefaultListLimit    = 50
	MaxListLimit        = 200
)

// RiskLevel is the screening service's risk grade for an address.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// ParseRiskLevel normalizes and validates external input.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid risk_level %q", s))
	}
	return r, nil
}

// Status of a compliance proof. Every status other than valid is terminal.
type Status string

const (
	StatusValid   Status = "valid"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

func (s Status) IsTerminal() bool {
	return s != StatusValid
}

// Proof is an attested compliance verdict, one per nullifier.
//
// Invariants:
//   - Nullifier is unique in storage for the proof's whole lifetime
//   - Status moves valid → {used, expired, revoked}, or {used, expired} → revoked
//   - MrEnclave, MrSigner and AddressCommitment are lowercase hex of 32 bytes
type Proof struct {
	Nullifier         string
	AddressCommitment string
	Compliant         bool
	RiskLevel         RiskLevel
	MrEnclave         string
	MrSigner          string
	AttestationQuote  []byte
	UserID            id.UserID
	UsedFor           string
	RevocationReason  string
	CheckedAt         time.Time
	ExpiresAt         time.Time
	UsedAt            *time.Time
	RevokedAt         *time.Time
	Status            Status
}

// IsExpired reports whether the validity window has closed at now.
func (p *Proof) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// IsUsable reports whether the proof can still be consumed at now.
func (p *Proof) IsUsable(now time.Time) bool {
	return p.Status == StatusValid && !p.IsExpired(now)
}

// Consume moves a valid, unexpired proof to used. A valid proof past its
// expiry is flipped to expired and ErrExpired is returned; the caller must
// persist the flip.
func (p *Proof) Consume(usedFor string, now time.Time) error {
	switch p.Status {
	case StatusValid:
		if p.IsExpired(now) {
			p.Status = StatusExpired
			return sentinel.ErrExpired
		}
		p.Status = StatusUsed
		p.UsedFor = usedFor
		p.UsedAt = &now
		return nil
	case StatusExpired:
		return sentinel.ErrExpired
	case StatusUsed:
		return sentinel.ErrAlreadyUsed
	default:
		return sentinel.ErrInvalidState
	}
}

// Revoke marks the proof revoked. Revoking twice is an invalid transition.
func (p *Proof) Revoke(reason string, now time.Time) error {
	if p.Status == StatusRevoked {
		return sentinel.ErrInvalidState
	}
	p.Status = StatusRevoked
	p.RevocationReason = reason
	p.RevokedAt = &now
	return nil
}

// Clone returns a deep copy.
func (p *Proof) Clone() *Proof {
	c := *p
	if p.AttestationQuote != nil {
		c.AttestationQuote = append([]byte(nil), p.AttestationQuote...)
	}
	if p.UsedAt != nil {
		t := *p.UsedAt
		c.UsedAt = &t
	}
	if p.RevokedAt != nil {
		t := *p.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// Validate checks a proof before first insert.
func (p *Proof) Validate(now time.Time) error {
	if err := ValidateNullifier(p.Nullifier); err != nil {
		return err
	}
	if err := ValidateHex32("address_commitment", p.AddressCommitment); err != nil {
		return err
	}
	if !p.RiskLevel.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid risk_level %q", p.RiskLevel))
	}
	if err := ValidateHex32("mr_enclave", p.MrEnclave); err != nil {
		return err
	}
	if p.MrSigner != "" {
		if err := ValidateHex32("mr_signer", p.MrSigner); err != nil {
			return err
		}
	}
	if len(p.AttestationQuote) > MaxAttestationQuote {
		return dErrors.New(dErrors.CodeValidation, "attestation_quote is too large")
	}
	if len(p.UsedFor) > MaxUsedForLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("used_for must be %d characters or less", MaxUsedForLength))
	}
	if !p.ExpiresAt.After(now) {
		return dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}
	return nil
}

// ValidateNullifier checks the identifier shape.
func ValidateNullifier(n string) error {
	if strings.TrimSpace(n) == "" {
		return dErrors.New(dErrors.CodeValidation, "nullifier is required")
	}
	if len(n) > MaxNullifierLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("nullifier must be %d characters or less", MaxNullifierLength))
	}
	return nil
}

// ValidateHex32 checks that value is lowercase hex of exactly 32 bytes.
func ValidateHex32(field, value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if len(value) != 2*MeasurementSize || strings.ToLower(value) != value {
		return dErrors.New(dErrors.CodeValidation, field+" must be 64 lowercase hex characters")
	}
	if _, err := hex.DecodeString(value); err != nil {
		return dErrors.New(dErrors.CodeValidation, field+" must be 64 lowercase hex characters")
	}
	return nil
}

// ClampLimit applies the default and upper bound to a list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
