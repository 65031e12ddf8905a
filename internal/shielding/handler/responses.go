package handler

import (
	"encoding/hex"
	"time"

	"discard/internal/shielding/models"
	stealthModels "discard/internal/stealth/models"
)

// ShieldResponse carries the rerandomized encrypted deposit. Byte fields
// are base64 in JSON.
type ShieldResponse struct {
	StealthAddress   string `json:"stealth_address"`
	Status           string `json:"status"`
	EncryptedDeposit []byte `json:"encrypted_deposit"`
	PoolVersion      int64  `json:"pool_version"`
}

type AddressStatusResponse struct {
	StealthAddress string     `json:"stealth_address"`
	Status         string     `json:"status"`
	ShieldTxSig    string     `json:"shield_tx_sig,omitempty"`
	ShieldedAt     *time.Time `json:"shielded_at,omitempty"`
}

type PoolBalanceResponse struct {
	PoolID       string    `json:"pool_id"`
	PublicKey    string    `json:"public_key"`
	Balance      []byte    `json:"balance"`
	Version      int64     `json:"version"`
	DepositCount int64     `json:"deposit_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func FromShield(s *models.Shield) *ShieldResponse {
	return &ShieldResponse{
		StealthAddress:   s.Address.StealthAddress,
		Status:           string(s.Address.Status),
		EncryptedDeposit: s.EncryptedDeposit,
		PoolVersion:      s.PoolVersion,
	}
}

func fromAddress(v *stealthModels.AddressView) *AddressStatusResponse {
	return &AddressStatusResponse{
		StealthAddress: v.StealthAddress,
		Status:         string(v.Status),
		ShieldTxSig:    v.ShieldTxSig,
		ShieldedAt:     v.ShieldedAt,
	}
}

func FromPool(p *models.PoolBalance) *PoolBalanceResponse {
	return &PoolBalanceResponse{
		PoolID:       p.PoolID,
		PublicKey:    hex.EncodeToString(p.PublicKey),
		Balance:      p.Balance,
		Version:      p.Version,
		DepositCount: p.DepositCount,
		UpdatedAt:    p.UpdatedAt,
	}
}
