package handler

import (
	"strings"

	dErrors "discard/pkg/domain-errors"
)

type ShieldRequest struct {
	StealthAddress      string `json:"stealth_address"`
	IntentNullifier     string `json:"intent_nullifier"`
	ComplianceNullifier string `json:"compliance_nullifier"`
}

func (r *ShieldRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.StealthAddress = strings.TrimSpace(r.StealthAddress)
	r.IntentNullifier = strings.TrimSpace(r.IntentNullifier)
	r.ComplianceNullifier = strings.TrimSpace(r.ComplianceNullifier)
	if r.StealthAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "stealth_address is required")
	}
	return nil
}

type ConfirmRequest struct {
	TxSig string `json:"tx_sig"`
}

func (r *ConfirmRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.TxSig = strings.TrimSpace(r.TxSig)
	if r.TxSig == "" {
		return dErrors.New(dErrors.CodeValidation, "tx_sig is required")
	}
	return nil
}
