package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: proof
	// consumption, revocation, quarantine, and shielding of funds.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers replay attempts and rejected access.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    string
	// Subject is the record the action applies to, such as a stealth
	// address, a nullifier, or a pool identifier.
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
}

type AuditEvent string

const (
	// Address lifecycle
	EventAddressGenerated   AuditEvent = "address_generated"
	EventDepositRecorded    AuditEvent = "deposit_recorded"
	EventAddressQuarantined AuditEvent = "address_quarantined"
	EventAddressesExpired   AuditEvent = "addresses_expired"

	// Shielding
	EventShieldStarted      AuditEvent = "shield_started"
	EventShieldConfirmed    AuditEvent = "shield_confirmed"
	EventPoolCredited       AuditEvent = "pool_credited"
	EventPoolBalanceAudited AuditEvent = "pool_balance_audited"

	// Compliance proofs
	EventComplianceProofStored  AuditEvent = "compliance_proof_stored"
	EventComplianceProofUsed    AuditEvent = "compliance_proof_used"
	EventComplianceProofRevoked AuditEvent = "compliance_proof_revoked"
	EventScreeningRecorded      AuditEvent = "screening_recorded"

	// Nullifiers
	EventNullifierConsumed       AuditEvent = "nullifier_consumed"
	EventNullifierReplayRejected AuditEvent = "nullifier_replay_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDepositRecorded:        CategoryCompliance,
	EventAddressQuarantined:     CategoryCompliance,
	EventShieldStarted:          CategoryCompliance,
	EventShieldConfirmed:        CategoryCompliance,
	EventComplianceProofStored:  CategoryCompliance,
	EventComplianceProofUsed:    CategoryCompliance,
	EventComplianceProofRevoked: CategoryCompliance,
	EventScreeningRecorded:      CategoryCompliance,

	EventNullifierReplayRejected: CategorySecurity,
	EventPoolBalanceAudited:      CategorySecurity,

	EventAddressGenerated:  CategoryOperations,
	EventAddressesExpired:  CategoryOperations,
	EventNullifierConsumed: CategoryOperations,
	EventPoolCredited:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
