package adapters

import (
	"context"

	"discard/internal/compliance/service"
	stealthService "discard/internal/stealth/service"
	id "discard/pkg/domain"
)

// StealthAdapter implements service.Addresses by calling the stealth
// lifecycle service in process.
type StealthAdapter struct {
	stealth *stealthService.Service
}

// NewStealthAdapter creates a new stealth adapter.
func NewStealthAdapter(stealth *stealthService.Service) service.Addresses {
	return &StealthAdapter{stealth: stealth}
}

func (a *StealthAdapter) Commitment(ctx context.Context, stealthAddress string) (string, id.UserID, error) {
	return a.stealth.Commitment(ctx, stealthAddress)
}

func (a *StealthAdapter) RecordComplianceResult(ctx context.Context, stealthAddress string, passed bool, reason string) error {
	_, err := a.stealth.RecordComplianceResult(ctx, stealthAddress, passed, reason)
	return err
}

func (a *StealthAdapter) Quarantine(ctx context.Context, stealthAddress, reason string) error {
	_, err := a.stealth.Quarantine(ctx, stealthAddress, reason)
	return err
}
