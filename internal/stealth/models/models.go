package models

import (
	"fmt"
	"time"

	id "discard/pkg/domain"
	"discard/pkg/platform/sentinel"
)

// Status is the lifecycle position of a receive address.
type Status string

const (
	StatusActive      Status = "active"
	StatusFunded      Status = "funded"
	StatusShielding   Status = "shielding"
	StatusShielded    Status = "shielded"
	StatusQuarantined Status = "quarantined"
	StatusExpired     Status = "expired"
)

// IsTerminal reports whether no event can move the address out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusShielded, StatusQuarantined, StatusExpired:
		return true
	}
	return false
}

// InFlight reports whether a deposit has been observed but not resolved.
func (s Status) InFlight() bool {
	return s == StatusFunded || s == StatusShielding
}

// Event drives a lifecycle transition.
type Event string

const (
	EventDepositObserved  Event = "deposit_observed"
	EventShieldSubmitted  Event = "shield_submitted"
	EventShieldConfirmed  Event = "shield_confirmed"
	EventComplianceFailed Event = "compliance_failed"
	EventGraceElapsed     Event = "grace_elapsed"
)

// transitions is the complete state machine. Anything absent is illegal.
var transitions = map[Event]map[Status]Status{
	EventDepositObserved:  {StatusActive: StatusFunded},
	EventShieldSubmitted:  {StatusFunded: StatusShielding},
	EventShieldConfirmed:  {StatusShielding: StatusShielded},
	EventComplianceFailed: {StatusActive: StatusQuarantined, StatusFunded: StatusQuarantined},
	EventGraceElapsed:     {StatusActive: StatusExpired},
}

// Transition returns the status reached by applying ev in from. Illegal
// transitions, including every event on a terminal status, return an error
// wrapping sentinel.ErrInvalidState.
func Transition(from Status, ev Event) (Status, error) {
	to, ok := transitions[ev][from]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", sentinel.ErrInvalidState, ev, from)
	}
	return to, nil
}

// SourcesFor lists the statuses from which ev is legal, for stores that
// express the transition as a conditional write.
func SourcesFor(ev Event) []Status {
	out := make([]Status, 0, len(transitions[ev]))
	for _, s := range []Status{StatusActive, StatusFunded, StatusShielding} {
		if _, ok := transitions[ev][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Deposit is a chain monitor observation of funds arriving at an address.
type Deposit struct {
	SenderAddress string
	TxRef         string
	Amount        uint64
	TokenRef      string
}

// ReceiveAddress is a single-use stealth receive address owned by one user.
// SealedSeed is server-only and never leaves the service layer.
type ReceiveAddress struct {
	ID               id.AddressID
	UserID           id.UserID
	StealthAddress   string
	SealedSeed       []byte
	Status           Status
	CreatedAt        time.Time
	ExpiresAt        time.Time
	GraceExpiresAt   time.Time
	DepositAmount    *uint64
	DepositTxRef     string
	TokenRef         string
	SenderAddress    string
	FundedAt         *time.Time
	CompliancePassed *bool
	ComplianceReason string
	ShieldTxSig      string
	ShieldedAt       *time.Time
	QuarantinedAt    *time.Time
	QuarantineReason string
	UpdatedAt        time.Time
}

// GraceElapsed reports whether the address can no longer accept a deposit.
func (a *ReceiveAddress) GraceElapsed(now time.Time) bool {
	return !now.Before(a.GraceExpiresAt)
}

// IsCurrent reports whether the address is the kind a user is shown: active
// within grace, or holding an unresolved deposit.
func (a *ReceiveAddress) IsCurrent(now time.Time) bool {
	if a.Status == StatusActive {
		return !a.GraceElapsed(now)
	}
	return a.Status.InFlight()
}

func (a *ReceiveAddress) apply(ev Event, now time.Time) error {
	to, err := Transition(a.Status, ev)
	if err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Fund records a deposit. An active address past its grace window is
// expired instead and sentinel.ErrExpired is returned.
func (a *ReceiveAddress) Fund(d Deposit, now time.Time) error {
	if a.Status == StatusActive && a.GraceElapsed(now) {
		if err := a.apply(EventGraceElapsed, now); err != nil {
			return err
		}
		return sentinel.ErrExpired
	}
	if err := a.apply(EventDepositObserved, now); err != nil {
		return err
	}
	amount := d.Amount
	a.DepositAmount = &amount
	a.DepositTxRef = d.TxRef
	a.TokenRef = d.TokenRef
	a.SenderAddress = d.SenderAddress
	a.FundedAt = &now
	return nil
}

func (a *ReceiveAddress) StartShielding(now time.Time) error {
	return a.apply(EventShieldSubmitted, now)
}

func (a *ReceiveAddress) ConfirmShield(txSig string, now time.Time) error {
	if err := a.apply(EventShieldConfirmed, now); err != nil {
		return err
	}
	a.ShieldTxSig = txSig
	a.ShieldedAt = &now
	return nil
}

func (a *ReceiveAddress) Quarantine(reason string, now time.Time) error {
	if err := a.apply(EventComplianceFailed, now); err != nil {
		return err
	}
	passed := false
	a.CompliancePassed = &passed
	a.ComplianceReason = reason
	a.QuarantineReason = reason
	a.QuarantinedAt = &now
	return nil
}

// Expire applies the grace sweep if the window has closed.
func (a *ReceiveAddress) Expire(now time.Time) (bool, error) {
	if a.Status != StatusActive || !a.GraceElapsed(now) {
		return false, nil
	}
	return true, a.apply(EventGraceElapsed, now)
}

// RecordCompliance notes a screening result without changing status.
func (a *ReceiveAddress) RecordCompliance(passed bool, reason string, now time.Time) {
	a.CompliancePassed = &passed
	a.ComplianceReason = reason
	a.UpdatedAt = now
}

// Clone returns a deep copy.
func (a *ReceiveAddress) Clone() *ReceiveAddress {
	c := *a
	c.SealedSeed = append([]byte(nil), a.SealedSeed...)
	if a.DepositAmount != nil {
		v := *a.DepositAmount
		c.DepositAmount = &v
	}
	if a.CompliancePassed != nil {
		v := *a.CompliancePassed
		c.CompliancePassed = &v
	}
	c.FundedAt = cloneTime(a.FundedAt)
	c.ShieldedAt = cloneTime(a.ShieldedAt)
	c.QuarantinedAt = cloneTime(a.QuarantinedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AddressView is the caller-facing projection of a ReceiveAddress. It has no
// seed field, so nothing built from it can leak key material.
type AddressView struct {
	ID               id.AddressID
	UserID           id.UserID
	StealthAddress   string
	Status           Status
	CreatedAt        time.Time
	ExpiresAt        time.Time
	GraceExpiresAt   time.Time
	DepositAmount    *uint64
	DepositTxRef     string
	TokenRef         string
	SenderAddress    string
	FundedAt         *time.Time
	CompliancePassed *bool
	ComplianceReason string
	ShieldTxSig      string
	ShieldedAt       *time.Time
	QuarantinedAt    *time.Time
	QuarantineReason string
	UpdatedAt        time.Time
}

// View redacts the sealed seed.
func (a *ReceiveAddress) View() *AddressView {
	c := a.Clone()
	return &AddressView{
		ID:               c.ID,
		UserID:           c.UserID,
		StealthAddress:   c.StealthAddress,
		Status:           c.Status,
		CreatedAt:        c.CreatedAt,
		ExpiresAt:        c.ExpiresAt,
		GraceExpiresAt:   c.GraceExpiresAt,
		DepositAmount:    c.DepositAmount,
		DepositTxRef:     c.DepositTxRef,
		TokenRef:         c.TokenRef,
		SenderAddress:    c.SenderAddress,
		FundedAt:         c.FundedAt,
		CompliancePassed: c.CompliancePassed,
		ComplianceReason: c.ComplianceReason,
		ShieldTxSig:      c.ShieldTxSig,
		ShieldedAt:       c.ShieldedAt,
		QuarantinedAt:    c.QuarantinedAt,
		QuarantineReason: c.QuarantineReason,
		UpdatedAt:        c.UpdatedAt,
	}
}
