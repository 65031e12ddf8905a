package handler

import (
	"strings"

	dErrors "discard/pkg/domain-errors"
)

// DepositRequest is the chain monitor's report of a transfer.
type DepositRequest struct {
	StealthAddress string `json:"stealth_address"`
	SenderAddress  string `json:"sender_address"`
	TxRef          string `json:"tx_ref"`
	Amount         uint64 `json:"amount"`
	TokenRef       string `json:"token_ref"`
}

// Validate implements httputil.Validatable. Range checks live in the service.
func (r *DepositRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.StealthAddress = strings.TrimSpace(r.StealthAddress)
	r.SenderAddress = strings.TrimSpace(r.SenderAddress)
	r.TxRef = strings.TrimSpace(r.TxRef)
	r.TokenRef = strings.TrimSpace(r.TokenRef)
	if r.StealthAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "stealth_address is required")
	}
	if r.TxRef == "" {
		return dErrors.New(dErrors.CodeValidation, "tx_ref is required")
	}
	return nil
}
