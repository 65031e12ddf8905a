// Package keys mints stealth receive addresses and protects their seeds.
//
// A stealth address is the base58 encoding of an ed25519 public key derived
// from a random 32-byte seed. The service keeps the seed, sealed under a
// server key, so it can later sign the sweep of the deposited funds.
package keys

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// SeedSize is the length of a stealth seed.
const SeedSize = ed25519.SeedSize

var (
	ErrInvalidAddress = errors.New("keys: invalid stealth address")
	ErrInvalidSeed    = errors.New("keys: invalid seed")
	ErrSealedSeed     = errors.New("keys: sealed seed cannot be opened")
)

// Stealth is a freshly minted address with its seed.
type Stealth struct {
	Seed    []byte
	Address string
}

// NewStealth draws a random seed and derives its address.
func NewStealth() (*Stealth, error) {
	return newStealth(rand.Reader)
}

func newStealth(r io.Reader) (*Stealth, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &Stealth{Seed: seed, Address: addr}, nil
}

// PrivateKey expands a seed into its signing key.
func PrivateKey(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidSeed
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// AddressFromSeed derives the stealth address for seed.
func AddressFromSeed(seed []byte) (string, error) {
	priv, err := PrivateKey(seed)
	if err != nil {
		return "", err
	}
	return base58.Encode(priv.Public().(ed25519.PublicKey)), nil
}

// ValidateAddress checks that addr decodes to an ed25519 public key.
func ValidateAddress(addr string) error {
	if addr == "" || len(addr) > 64 {
		return ErrInvalidAddress
	}
	if len(base58.Decode(addr)) != ed25519.PublicKeySize {
		return ErrInvalidAddress
	}
	return nil
}

// AddressCommitment binds a proof to an address without storing the address
// itself: hex(BLAKE2b-256(salt || address)).
func AddressCommitment(address string, salt []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(salt)
	h.Write([]byte(address))
	return hex.EncodeToString(h.Sum(nil))
}

// SeedSealer encrypts seeds at rest with XChaCha20-Poly1305. The stealth
// address is the associated data, so a sealed seed cannot be moved to
// another row.
type SeedSealer struct {
	aead cipher.AEAD
}

// NewSeedSealer builds a sealer from a 32-byte key.
func NewSeedSealer(key []byte) (*SeedSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keys: seed sealing key: %w", err)
	}
	return &SeedSealer{aead: aead}, nil
}

// NewSeedSealerHex parses a hex-encoded key.
func NewSeedSealerHex(keyHex string) (*SeedSealer, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("keys: seed sealing key: %w", err)
	}
	return NewSeedSealer(key)
}

// Seal returns nonce || ciphertext.
func (s *SeedSealer) Seal(seed []byte, address string) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidSeed
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+SeedSize+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keys: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, seed, []byte(address)), nil
}

// Open reverses Seal for the same address.
func (s *SeedSealer) Open(sealed []byte, address string) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrSealedSeed
	}
	seed, err := s.aead.Open(nil, sealed[:n], sealed[n:], []byte(address))
	if err != nil {
		return nil, ErrSealedSeed
	}
	return seed, nil
}
