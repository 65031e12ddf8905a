package elgamal

import (
	"errors"
	"fmt"
)

var (
	// ErrAmountOutOfRange is returned when an amount exceeds MaxAmount.
	ErrAmountOutOfRange = errors.New("amount out of range")
	// ErrKeyMismatch is returned when ciphertexts bound to different public keys are combined.
	ErrKeyMismatch = errors.New("ciphertexts under different public keys")
	// ErrInvalidEncoding is returned for malformed, non-canonical, or small-order encodings.
	ErrInvalidEncoding = errors.New("invalid encoding")
	// ErrInvalidSeed is returned when a derivation seed is not SeedSize bytes.
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrNilInput is returned when a required key or ciphertext is nil.
	ErrNilInput = errors.New("nil input")
)

// DomainError reports a misuse of the encryption domain. These are programming
// errors on the caller side and must fail fast.
type DomainError struct {
	Op  string
	Err error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("elgamal: %s: %v", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

func domainErr(op string, err error) error {
	return &DomainError{Op: op, Err: err}
}

// IsDomainError reports whether err originated from this package.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
