package elgamal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// AmountBits bounds the plaintext range so decryption stays tractable.
	AmountBits = 24
	// MaxAmount is the largest encryptable amount, 2^24 - 1.
	MaxAmount uint32 = 1<<AmountBits - 1
)

// Ciphertext is an immutable twisted ElGamal ciphertext (C1, C2).
type Ciphertext struct {
	c1 *edwards25519.Point
	c2 *edwards25519.Point

	// key tag of the public key that produced this ciphertext; never serialized
	tagged bool
	keyTag [PublicKeySize]byte
}

// Zero returns the encryption of 0 with no blinding, (identity, identity).
// It is the neutral element for Add.
func Zero() *Ciphertext {
	return &Ciphertext{
		c1: edwards25519.NewIdentityPoint(),
		c2: edwards25519.NewIdentityPoint(),
	}
}

// Encrypt encrypts amount under pub with fresh randomness.
func Encrypt(amount uint32, pub *PublicKey) (*Ciphertext, error) {
	if pub == nil || pub.point == nil {
		return nil, domainErr("encrypt", ErrNilInput)
	}
	if amount > MaxAmount {
		return nil, domainErr("encrypt", fmt.Errorf("%w: %d > %d", ErrAmountOutOfRange, amount, MaxAmount))
	}
	r, err := randomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	c1 := new(edwards25519.Point).ScalarBaseMult(r)
	mG := new(edwards25519.Point).ScalarBaseMult(amountScalar(amount))
	rP := new(edwards25519.Point).ScalarMult(r, pub.point)
	c2 := new(edwards25519.Point).Add(mG, rP)
	return tagged(&Ciphertext{c1: c1, c2: c2}, pub), nil
}

// Decrypt recovers the amount. It never fails: with the wrong key the result
// is a deterministic but meaningless value in [0, MaxAmount].
func Decrypt(ct *Ciphertext, priv *PrivateKey) uint32 {
	if ct == nil || ct.c1 == nil || ct.c2 == nil || priv == nil || priv.scalar == nil {
		return 0
	}
	m := new(edwards25519.Point).Subtract(ct.c2, new(edwards25519.Point).ScalarMult(priv.scalar, ct.c1))
	if v, ok := table().solve(m); ok {
		return v
	}
	return fallbackAmount(m)
}

// VerifyCiphertext reports whether ct decrypts to expected under priv.
func VerifyCiphertext(ct *Ciphertext, expected uint32, priv *PrivateKey) bool {
	if ct == nil || ct.c1 == nil || ct.c2 == nil || priv == nil || priv.scalar == nil || expected > MaxAmount {
		return false
	}
	m := new(edwards25519.Point).Subtract(ct.c2, new(edwards25519.Point).ScalarMult(priv.scalar, ct.c1))
	want := new(edwards25519.Point).ScalarBaseMult(amountScalar(expected))
	return m.Equal(want) == 1
}

// Add returns a + b. Both must have been produced under the same key.
func Add(a, b *Ciphertext) (*Ciphertext, error) {
	return combine("add", nil, a, b, (*edwards25519.Point).Add)
}

// Sub returns a - b, which decrypts to Dec(a) - Dec(b) when that is non-negative.
func Sub(a, b *Ciphertext) (*Ciphertext, error) {
	return combine("sub", nil, a, b, (*edwards25519.Point).Subtract)
}

// AddUnderKey is Add with an explicit expectation that tagged inputs belong to pub.
func AddUnderKey(pub *PublicKey, a, b *Ciphertext) (*Ciphertext, error) {
	if pub == nil || pub.point == nil {
		return nil, domainErr("add", ErrNilInput)
	}
	return combine("add", pub, a, b, (*edwards25519.Point).Add)
}

// SubUnderKey is Sub with an explicit expectation that tagged inputs belong to pub.
func SubUnderKey(pub *PublicKey, a, b *Ciphertext) (*Ciphertext, error) {
	if pub == nil || pub.point == nil {
		return nil, domainErr("sub", ErrNilInput)
	}
	return combine("sub", pub, a, b, (*edwards25519.Point).Subtract)
}

func combine(op string, pub *PublicKey, a, b *Ciphertext, f func(v, p, q *edwards25519.Point) *edwards25519.Point) (*Ciphertext, error) {
	if a == nil || b == nil || a.c1 == nil || b.c1 == nil {
		return nil, domainErr(op, ErrNilInput)
	}
	if a.tagged && b.tagged && a.keyTag != b.keyTag {
		return nil, domainErr(op, ErrKeyMismatch)
	}
	if pub != nil {
		tag := keyTagOf(pub)
		if (a.tagged && a.keyTag != tag) || (b.tagged && b.keyTag != tag) {
			return nil, domainErr(op, ErrKeyMismatch)
		}
	}

	out := &Ciphertext{
		c1: f(new(edwards25519.Point), a.c1, b.c1),
		c2: f(new(edwards25519.Point), a.c2, b.c2),
	}
	switch {
	case pub != nil:
		return tagged(out, pub), nil
	case a.tagged:
		out.tagged, out.keyTag = true, a.keyTag
	case b.tagged:
		out.tagged, out.keyTag = true, b.keyTag
	}
	return out, nil
}

// Rerandomize returns ct + Enc(0; r') so the result is unlinkable to ct
// while decrypting to the same amount.
func Rerandomize(ct *Ciphertext, pub *PublicKey) (*Ciphertext, error) {
	if ct == nil || ct.c1 == nil {
		return nil, domainErr("rerandomize", ErrNilInput)
	}
	zero, err := Encrypt(0, pub)
	if err != nil {
		return nil, err
	}
	return AddUnderKey(pub, ct, zero)
}

// Ephemeral returns a copy of C1 = r·G.
func (c *Ciphertext) Ephemeral() *edwards25519.Point {
	return new(edwards25519.Point).Set(c.c1)
}

// Encrypted returns a copy of C2 = m·G + r·P.
func (c *Ciphertext) Encrypted() *edwards25519.Point {
	return new(edwards25519.Point).Set(c.c2)
}

// Equal compares the encodings of two ciphertexts in constant time.
func (c *Ciphertext) Equal(other *Ciphertext) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, _ := c.MarshalBinary()
	b, _ := other.MarshalBinary()
	return subtle.ConstantTimeCompare(a, b) == 1
}

// BoundTo reports whether the ciphertext carries the tag of pub.
// Deserialized ciphertexts carry no tag until bound with BindKey.
func (c *Ciphertext) BoundTo(pub *PublicKey) bool {
	return c.tagged && pub != nil && pub.point != nil && c.keyTag == keyTagOf(pub)
}

// BindKey returns a copy of c tagged with pub, so later arithmetic can detect
// mixing with ciphertexts from another key.
func (c *Ciphertext) BindKey(pub *PublicKey) *Ciphertext {
	out := &Ciphertext{c1: c.Ephemeral(), c2: c.Encrypted()}
	if pub == nil || pub.point == nil {
		return out
	}
	return tagged(out, pub)
}

func tagged(c *Ciphertext, pub *PublicKey) *Ciphertext {
	c.tagged = true
	c.keyTag = keyTagOf(pub)
	return c
}

func keyTagOf(pub *PublicKey) [PublicKeySize]byte {
	var tag [PublicKeySize]byte
	copy(tag[:], pub.point.Bytes())
	return tag
}

func amountScalar(amount uint32) *edwards25519.Scalar {
	var buf [32]byte
	binary.LittleEndian.PutUint32(buf[:4], amount)
	s, err := edwards25519.NewScalar().SetCanonicalBytes(buf[:])
	if err != nil {
		// values below 2^32 are always canonical
		panic(err)
	}
	return s
}

// fallbackAmount maps an out-of-range point to a stable value in range.
func fallbackAmount(m *edwards25519.Point) uint32 {
	enc := m.Bytes()
	return binary.LittleEndian.Uint32(enc[:4]) & MaxAmount
}
