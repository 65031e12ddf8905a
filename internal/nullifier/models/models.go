package models

import (
	"fmt"
	"strings"
	"time"

	dErrors "discard/pkg/domain-errors"
)

const (
	// MaxNullifierLength bounds nullifier identifiers.
	MaxNullifierLength = 128
	// MaxBatchSize bounds CheckBatch input.
	MaxBatchSize = 256
)

// ProofType names the kind of one-time proof a nullifier consumes.
type ProofType string

const (
	ProofTypeCompliance   ProofType = "compliance"
	ProofTypeShieldIntent ProofType = "shield_intent"
	ProofTypeTransfer     ProofType = "transfer"
	ProofTypeWithdrawal   ProofType = "withdrawal"
	ProofTypeVelocity     ProofType = "velocity"
	ProofTypeAttestation  ProofType = "attestation"
)

var knownProofTypes = map[ProofType]struct{}{
	ProofTypeCompliance:   {},
	ProofTypeShieldIntent: {},
	ProofTypeTransfer:     {},
	ProofTypeWithdrawal:   {},
	ProofTypeVelocity:     {},
	ProofTypeAttestation:  {},
}

func (p ProofType) IsValid() bool {
	_, ok := knownProofTypes[p]
	return ok
}

// Status of a nullifier record. Both statuses mean "used"; expired only
// marks the record as eligible for retention cleanup.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Record is a consumed one-time token.
//
// Invariants:
//   - Nullifier is non-empty, at most MaxNullifierLength characters, unique in storage
//   - Status only moves active → expired
//   - A stored record is never reset to unused
type Record struct {
	Nullifier string            `json:"nullifier"`
	ProofType ProofType         `json:"proof_type"`
	ProofHash string            `json:"proof_hash,omitempty"`
	UsedAt    time.Time         `json:"used_at"`
	UsedBy    string            `json:"used_by,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
	Status    Status            `json:"status"`
}

// IsExpired reports whether the record's validity window has closed at now.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Record) Clone() *Record {
	c := *r
	if r.Context != nil {
		c.Context = make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			c.Context[k] = v
		}
	}
	return &c
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

// NewRecord builds an active record consumed at now.
func NewRecord(nullifier string, proofType ProofType, expiresAt, now time.Time) (*Record, error) {
	if err := ValidateNullifier(nullifier); err != nil {
		return nil, err
	}
	if !proofType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown proof type %q", proofType))
	}
	if !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}
	return &Record{
		Nullifier: nullifier,
		ProofType: proofType,
		UsedAt:    now,
		ExpiresAt: expiresAt,
		Status:    StatusActive,
	}, nil
}

// BatchResult reports whether one nullifier in a batch has been consumed.
type BatchResult struct {
	Nullifier string `json:"nullifier"`
	Used      bool   `json:"used"`
}
