package handler

import (
	"strings"
	"time"

	dErrors "discard/pkg/domain-errors"
)

// MarkUsedRequest consumes a nullifier on behalf of a collaborator.
type MarkUsedRequest struct {
	Nullifier string            `json:"nullifier"`
	ProofType string            `json:"proof_type"`
	ExpiresAt time.Time         `json:"expires_at"`
	ProofHash string            `json:"proof_hash"`
	UsedBy    string            `json:"used_by"`
	Context   map[string]string `json:"context"`
}

func (r *MarkUsedRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Nullifier = strings.TrimSpace(r.Nullifier)
	r.ProofType = strings.ToLower(strings.TrimSpace(r.ProofType))
	if r.ExpiresAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "expires_at is required")
	}
	return nil
}

type CheckRequest struct {
	Nullifiers []string `json:"nullifiers"`
}

func (r *CheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Nullifiers == nil {
		return dErrors.New(dErrors.CodeValidation, "nullifiers is required")
	}
	return nil
}
