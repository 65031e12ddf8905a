package handler

import (
	"time"

	"discard/internal/stealth/models"
)

// AddressResponse is the HTTP view of a receive address.
type AddressResponse struct {
	ID               string     `json:"id"`
	StealthAddress   string     `json:"stealth_address"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	GraceExpiresAt   time.Time  `json:"grace_expires_at"`
	DepositAmount    *uint64    `json:"deposit_amount,omitempty"`
	DepositTxRef     string     `json:"deposit_tx_ref,omitempty"`
	TokenRef         string     `json:"token_ref,omitempty"`
	SenderAddress    string     `json:"sender_address,omitempty"`
	FundedAt         *time.Time `json:"funded_at,omitempty"`
	CompliancePassed *bool      `json:"compliance_passed,omitempty"`
	ShieldTxSig      string     `json:"shield_tx_sig,omitempty"`
	ShieldedAt       *time.Time `json:"shielded_at,omitempty"`
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty"`
}

type AddressListResponse struct {
	Addresses []*AddressResponse `json:"addresses"`
}

func FromView(v *models.AddressView) *AddressResponse {
	return &AddressResponse{
		ID:               v.ID.String(),
		StealthAddress:   v.StealthAddress,
		Status:           string(v.Status),
		CreatedAt:        v.CreatedAt,
		ExpiresAt:        v.ExpiresAt,
		GraceExpiresAt:   v.GraceExpiresAt,
		DepositAmount:    v.DepositAmount,
		DepositTxRef:     v.DepositTxRef,
		TokenRef:         v.TokenRef,
		SenderAddress:    v.SenderAddress,
		FundedAt:         v.FundedAt,
		CompliancePassed: v.CompliancePassed,
		ShieldTxSig:      v.ShieldTxSig,
		ShieldedAt:       v.ShieldedAt,
		QuarantinedAt:    v.QuarantinedAt,
	}
}

func FromViews(views []*models.AddressView) *AddressListResponse {
	out := make([]*AddressResponse, 0, len(views))
	for _, v := range views {
		out = append(out, FromView(v))
	}
	return &AddressListResponse{Addresses: out}
}
