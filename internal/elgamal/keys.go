package elgamal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
)

const (
	// SeedSize is the required length of a derivation seed.
	SeedSize = 32
	// PublicKeySize is the length of an encoded public key.
	PublicKeySize = 32
	// PrivateKeySize is the length of an encoded private scalar.
	PrivateKeySize = 32
)

var deriveKey = []byte("discard/elgamal/keypair/v1")

// PublicKey is an encryption public key P = x·G.
type PublicKey struct {
	point *edwards25519.Point
}

// PrivateKey is the secret scalar x in [1, order-1].
type PrivateKey struct {
	scalar *edwards25519.Scalar
}

// Keypair holds a matching public and private key.
type Keypair struct {
	PublicKey  *PublicKey
	PrivateKey *PrivateKey
}

// GenerateKeypair returns a keypair with a uniformly random private scalar.
func GenerateKeypair() (*Keypair, error) {
	x, err := randomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	return keypairFromScalar(x), nil
}

// DeriveKeypair deterministically derives a keypair from a 32-byte seed.
// The same seed always yields a byte-identical keypair.
func DeriveKeypair(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, domainErr("derive keypair", fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSeed, SeedSize, len(seed)))
	}
	h, err := blake2b.New512(deriveKey)
	if err != nil {
		return nil, err
	}
	h.Write(seed)
	x, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	if x.Equal(edwards25519.NewScalar()) == 1 {
		return nil, domainErr("derive keypair", ErrInvalidSeed)
	}
	return keypairFromScalar(x), nil
}

func keypairFromScalar(x *edwards25519.Scalar) *Keypair {
	return &Keypair{
		PublicKey:  &PublicKey{point: new(edwards25519.Point).ScalarBaseMult(x)},
		PrivateKey: &PrivateKey{scalar: x},
	}
}

// randomScalar draws 64 bytes and reduces them, rejecting zero.
func randomScalar(r io.Reader) (*edwards25519.Scalar, error) {
	var buf [64]byte
	zero := edwards25519.NewScalar()
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		s, err := edwards25519.NewScalar().SetUniformBytes(buf[:])
		if err != nil {
			return nil, err
		}
		if s.Equal(zero) == 0 {
			return s, nil
		}
	}
}

// Bytes returns the 32-byte compressed encoding.
func (k *PublicKey) Bytes() []byte {
	return k.point.Bytes()
}

// String returns the hex encoding, safe to log.
func (k *PublicKey) String() string {
	if k == nil || k.point == nil {
		return "PublicKey(nil)"
	}
	return hex.EncodeToString(k.Bytes())
}

// Equal reports whether two public keys encode the same point.
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil || k.point == nil || other.point == nil {
		return false
	}
	return k.point.Equal(other.point) == 1
}

// ParsePublicKey decodes a 32-byte public key. The identity is rejected.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	p, err := decodePoint(b)
	if err != nil {
		return nil, domainErr("parse public key", err)
	}
	if p.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, domainErr("parse public key", ErrInvalidEncoding)
	}
	return &PublicKey{point: p}, nil
}

// ParsePublicKeyHex decodes a hex public key.
func ParsePublicKeyHex(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, domainErr("parse public key", ErrInvalidEncoding)
	}
	return ParsePublicKey(b)
}

// Bytes returns the canonical 32-byte scalar encoding. Handle with care.
func (k *PrivateKey) Bytes() []byte {
	return k.scalar.Bytes()
}

// PublicKey recomputes x·G.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{point: new(edwards25519.Point).ScalarBaseMult(k.scalar)}
}

// Equal compares two private keys in constant time.
func (k *PrivateKey) Equal(other *PrivateKey) bool {
	if k == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.Bytes(), other.Bytes()) == 1
}

// ParsePrivateKey decodes a canonical 32-byte scalar. Zero is rejected.
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, domainErr("parse private key", ErrInvalidEncoding)
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, domainErr("parse private key", ErrInvalidEncoding)
	}
	if s.Equal(edwards25519.NewScalar()) == 1 {
		return nil, domainErr("parse private key", ErrInvalidEncoding)
	}
	return &PrivateKey{scalar: s}, nil
}

// ParsePrivateKeyHex decodes a hex private scalar.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, domainErr("parse private key", ErrInvalidEncoding)
	}
	return ParsePrivateKey(b)
}
