package domain

import (
	"github.com/google/uuid"

	dErrors "discard/pkg/domain-errors"
)

// UserID identifies the platform user that owns receive addresses and proofs.
// Invariant: a parsed UserID is never the nil UUID.
type UserID uuid.UUID

// AddressID identifies a stealth receive address record.
type AddressID uuid.UUID

func (u UserID) String() string { return uuid.UUID(u).String() }

func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

func (a AddressID) String() string { return uuid.UUID(a).String() }

func (a AddressID) IsNil() bool { return uuid.UUID(a) == uuid.Nil }

// ParseUserID constructs a UserID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or nil.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseAddressID constructs an AddressID from external input.
func ParseAddressID(s string) (AddressID, error) {
	u, err := parseUUID(s, "address_id")
	return AddressID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}
