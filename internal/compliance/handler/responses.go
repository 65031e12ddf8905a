package handler

import (
	"time"

	"discard/internal/compliance/models"
	"discard/internal/compliance/service"
)

// ProofResponse is the HTTP view of a compliance proof. The attestation quote
// is reported by size only.
type ProofResponse struct {
	Nullifier         string     `json:"nullifier"`
	AddressCommitment string     `json:"address_commitment"`
	Compliant         bool       `json:"compliant"`
	RiskLevel         string     `json:"risk_level"`
	MrEnclave         string     `json:"mr_enclave"`
	MrSigner          string     `json:"mr_signer,omitempty"`
	AttestationBytes  int        `json:"attestation_bytes"`
	Status            string     `json:"status"`
	UsedFor           string     `json:"used_for,omitempty"`
	RevocationReason  string     `json:"revocation_reason,omitempty"`
	CheckedAt         time.Time  `json:"checked_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	UsedAt            *time.Time `json:"used_at,omitempty"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

type ProofListResponse struct {
	Proofs []*ProofResponse `json:"proofs"`
}

type ScreeningResponse struct {
	Proof       *ProofResponse `json:"proof"`
	Passed      bool           `json:"passed"`
	Quarantined bool           `json:"quarantined"`
}

func FromProof(p *models.Proof) *ProofResponse {
	return &ProofResponse{
		Nullifier:         p.Nullifier,
		AddressCommitment: p.AddressCommitment,
		Compliant:         p.Compliant,
		RiskLevel:         string(p.RiskLevel),
		MrEnclave:         p.MrEnclave,
		MrSigner:          p.MrSigner,
		AttestationBytes:  len(p.AttestationQuote),
		Status:            string(p.Status),
		UsedFor:           p.UsedFor,
		RevocationReason:  p.RevocationReason,
		CheckedAt:         p.CheckedAt,
		ExpiresAt:         p.ExpiresAt,
		UsedAt:            p.UsedAt,
		RevokedAt:         p.RevokedAt,
	}
}

func FromProofs(proofs []*models.Proof) *ProofListResponse {
	out := &ProofListResponse{Proofs: make([]*ProofResponse, 0, len(proofs))}
	for _, p := range proofs {
		out.Proofs = append(out.Proofs, FromProof(p))
	}
	return out
}

func FromScreening(s *service.Screening) *ScreeningResponse {
	return &ScreeningResponse{
		Proof:       FromProof(s.Proof),
		Passed:      s.Passed,
		Quarantined: s.Quarantined,
	}
}
