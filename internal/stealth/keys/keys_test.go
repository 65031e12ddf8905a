package keys

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStealth(t *testing.T) {
	a, err := NewStealth()
	require.NoError(t, err)
	b, err := NewStealth()
	require.NoError(t, err)

	assert.Len(t, a.Seed, SeedSize)
	assert.NotEqual(t, a.Address, b.Address)
	require.NoError(t, ValidateAddress(a.Address))

	priv, err := PrivateKey(a.Seed)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), a.Address)
}

func TestAddressFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)
	s, err := newStealth(bytes.NewReader(seed))
	require.NoError(t, err)

	again, err := AddressFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, s.Address, again)

	_, err = AddressFromSeed(seed[:31])
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestValidateAddress(t *testing.T) {
	for _, addr := range []string{"", "0OIl", base58.Encode([]byte("short")), strings.Repeat("1", 65)} {
		assert.ErrorIs(t, ValidateAddress(addr), ErrInvalidAddress, addr)
	}
}

func TestAddressCommitment(t *testing.T) {
	salt := []byte("salt")
	c1 := AddressCommitment("addr-1", salt)
	assert.Len(t, c1, 64)
	assert.Equal(t, c1, AddressCommitment("addr-1", salt))
	assert.NotEqual(t, c1, AddressCommitment("addr-2", salt))
	assert.NotEqual(t, c1, AddressCommitment("addr-1", []byte("pepper")))
}

func TestSeedSealer(t *testing.T) {
	sealer, err := NewSeedSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	seed := bytes.Repeat([]byte{9}, SeedSize)

	sealed, err := sealer.Seal(seed, "addr-1")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), string(seed))

	t.Run("round trip", func(t *testing.T) {
		opened, err := sealer.Open(sealed, "addr-1")
		require.NoError(t, err)
		assert.Equal(t, seed, opened)
	})

	t.Run("bound to address", func(t *testing.T) {
		_, err := sealer.Open(sealed, "addr-2")
		assert.ErrorIs(t, err, ErrSealedSeed)
	})

	t.Run("fresh nonce per seal", func(t *testing.T) {
		again, err := sealer.Seal(seed, "addr-1")
		require.NoError(t, err)
		assert.NotEqual(t, sealed, again)
	})

	t.Run("tampering detected", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 1
		_, err := sealer.Open(tampered, "addr-1")
		assert.ErrorIs(t, err, ErrSealedSeed)
		_, err = sealer.Open(sealed[:10], "addr-1")
		assert.ErrorIs(t, err, ErrSealedSeed)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := NewSeedSealer([]byte("short"))
		assert.Error(t, err)
		_, err = NewSeedSealerHex("zz")
		assert.Error(t, err)
	})
}
