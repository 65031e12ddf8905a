package elgamal

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"

	"filippo.io/edwards25519"
)

// CiphertextSize is the length of a binary-encoded ciphertext.
const CiphertextSize = 64

var (
	identity = edwards25519.NewIdentityPoint()
	// order − 1; [L−1]P + P is the identity exactly when P is in the prime-order subgroup
	orderMinusOne = edwards25519.NewScalar().Subtract(edwards25519.NewScalar(), mustScalarOne())
)

func mustScalarOne() *edwards25519.Scalar {
	var one [32]byte
	one[0] = 1
	s, err := edwards25519.NewScalar().SetCanonicalBytes(one[:])
	if err != nil {
		panic(err)
	}
	return s
}

// decodePoint parses a canonical compressed point in the prime-order subgroup.
func decodePoint(b []byte) (*edwards25519.Point, error) {
	if len(b) != 32 {
		return nil, ErrInvalidEncoding
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if !bytes.Equal(p.Bytes(), b) {
		return nil, ErrInvalidEncoding
	}
	check := new(edwards25519.Point).ScalarMult(orderMinusOne, p)
	check.Add(check, p)
	if check.Equal(identity) != 1 {
		return nil, ErrInvalidEncoding
	}
	return p, nil
}

// MarshalBinary encodes the ciphertext as C1 || C2.
func (c *Ciphertext) MarshalBinary() ([]byte, error) {
	if c == nil || c.c1 == nil || c.c2 == nil {
		return nil, domainErr("marshal ciphertext", ErrNilInput)
	}
	out := make([]byte, 0, CiphertextSize)
	out = append(out, c.c1.Bytes()...)
	return append(out, c.c2.Bytes()...), nil
}

// UnmarshalBinary decodes a 64-byte ciphertext. The result carries no key tag.
func (c *Ciphertext) UnmarshalBinary(b []byte) error {
	if len(b) != CiphertextSize {
		return domainErr("unmarshal ciphertext", ErrInvalidEncoding)
	}
	c1, err := decodePoint(b[:32])
	if err != nil {
		return domainErr("unmarshal ciphertext", err)
	}
	c2, err := decodePoint(b[32:])
	if err != nil {
		return domainErr("unmarshal ciphertext", err)
	}
	*c = Ciphertext{c1: c1, c2: c2}
	return nil
}

// MarshalText encodes the ciphertext as standard base64.
func (c *Ciphertext) MarshalText() ([]byte, error) {
	raw, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// UnmarshalText decodes a base64 ciphertext.
func (c *Ciphertext) UnmarshalText(text []byte) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(raw, text)
	if err != nil {
		return domainErr("unmarshal ciphertext", ErrInvalidEncoding)
	}
	return c.UnmarshalBinary(raw[:n])
}

// String returns the hex encoding for logs.
func (c *Ciphertext) String() string {
	raw, err := c.MarshalBinary()
	if err != nil {
		return "Ciphertext(nil)"
	}
	return hex.EncodeToString(raw)
}

// ParseCiphertext decodes a 64-byte ciphertext.
func ParseCiphertext(b []byte) (*Ciphertext, error) {
	c := new(Ciphertext)
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseCiphertextText decodes a base64 ciphertext.
func ParseCiphertextText(s string) (*Ciphertext, error) {
	c := new(Ciphertext)
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return c, nil
}
