package elgamal

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp := mustKeypair(t)
	amounts := []uint32{0, 1, 2, 255, babySteps - 1, babySteps, babySteps + 1, 1_000_000, MaxAmount - 1, MaxAmount}
	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		amounts = append(amounts, rng.Uint32N(MaxAmount+1))
	}

	for _, m := range amounts {
		ct, err := Encrypt(m, kp.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, m, Decrypt(ct, kp.PrivateKey), "amount %d", m)
		assert.True(t, VerifyCiphertext(ct, m, kp.PrivateKey))
	}
}

func TestEncryptRejectsOutOfRange(t *testing.T) {
	kp := mustKeypair(t)

	_, err := Encrypt(MaxAmount+1, kp.PublicKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.True(t, IsDomainError(err))

	_, err = Encrypt(1, nil)
	assert.ErrorIs(t, err, ErrNilInput)
}

func TestHomomorphicAddition(t *testing.T) {
	kp := mustKeypair(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for range 10 {
		a := rng.Uint32N(MaxAmount / 2)
		b := rng.Uint32N(MaxAmount / 2)
		ca, err := Encrypt(a, kp.PublicKey)
		require.NoError(t, err)
		cb, err := Encrypt(b, kp.PublicKey)
		require.NoError(t, err)

		sum, err := Add(ca, cb)
		require.NoError(t, err)
		assert.Equal(t, a+b, Decrypt(sum, kp.PrivateKey))
	}
}

func TestPoolAccumulatesDeposits(t *testing.T) {
	kp := mustKeypair(t)

	balance := Zero()
	for _, deposit := range []uint32{1500, 2500} {
		ct, err := Encrypt(deposit, kp.PublicKey)
		require.NoError(t, err)
		balance, err = AddUnderKey(kp.PublicKey, balance, ct)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(4000), Decrypt(balance, kp.PrivateKey))

	withdrawal, err := Encrypt(1000, kp.PublicKey)
	require.NoError(t, err)
	balance, err = SubUnderKey(kp.PublicKey, balance, withdrawal)
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), Decrypt(balance, kp.PrivateKey))
}

func TestZeroDecryptsToZero(t *testing.T) {
	kp := mustKeypair(t)
	assert.Equal(t, uint32(0), Decrypt(Zero(), kp.PrivateKey))
}

func TestEncryptionIsUnlinkable(t *testing.T) {
	kp := mustKeypair(t)

	first, err := Encrypt(42, kp.PublicKey)
	require.NoError(t, err)
	second, err := Encrypt(42, kp.PublicKey)
	require.NoError(t, err)

	assert.False(t, first.Equal(second))
	assert.Equal(t, Decrypt(first, kp.PrivateKey), Decrypt(second, kp.PrivateKey))

	again, err := Rerandomize(first, kp.PublicKey)
	require.NoError(t, err)
	assert.False(t, again.Equal(first))
	assert.Equal(t, uint32(42), Decrypt(again, kp.PrivateKey))

	other, err := Rerandomize(first, kp.PublicKey)
	require.NoError(t, err)
	assert.False(t, other.Equal(again), "two rerandomizations of one ciphertext differ")
	assert.Equal(t, uint32(42), Decrypt(other, kp.PrivateKey))
}

func TestDecryptWithWrongKeyIsTotal(t *testing.T) {
	right := mustKeypair(t)
	wrong := mustKeypair(t)
	rng := rand.New(rand.NewPCG(3, 5))

	matches := 0
	const samples = 24
	for range samples {
		m := rng.Uint32N(MaxAmount + 1)
		ct, err := Encrypt(m, right.PublicKey)
		require.NoError(t, err)

		var got uint32
		assert.NotPanics(t, func() { got = Decrypt(ct, wrong.PrivateKey) })
		assert.LessOrEqual(t, got, MaxAmount)
		if got == m {
			matches++
		}
		assert.False(t, VerifyCiphertext(ct, m, wrong.PrivateKey))
	}
	assert.LessOrEqual(t, matches, 1)
}

func TestDecryptWithWrongKeyIsDeterministic(t *testing.T) {
	right := mustKeypair(t)
	wrong := mustKeypair(t)
	ct, err := Encrypt(77, right.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, Decrypt(ct, wrong.PrivateKey), Decrypt(ct, wrong.PrivateKey))
}

func TestDecryptNilInputs(t *testing.T) {
	kp := mustKeypair(t)
	assert.Equal(t, uint32(0), Decrypt(nil, kp.PrivateKey))
	assert.Equal(t, uint32(0), Decrypt(Zero(), nil))
	assert.False(t, VerifyCiphertext(nil, 0, kp.PrivateKey))
}

func TestAddRejectsMismatchedKeys(t *testing.T) {
	a := mustKeypair(t)
	b := mustKeypair(t)

	ca, err := Encrypt(1, a.PublicKey)
	require.NoError(t, err)
	cb, err := Encrypt(2, b.PublicKey)
	require.NoError(t, err)

	_, err = Add(ca, cb)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	_, err = AddUnderKey(a.PublicKey, ca, cb)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	_, err = Rerandomize(ca, b.PublicKey)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	_, err = Add(ca, nil)
	assert.ErrorIs(t, err, ErrNilInput)
}

func TestDeserializedCiphertextCanBeRebound(t *testing.T) {
	kp := mustKeypair(t)
	other := mustKeypair(t)

	ct, err := Encrypt(9, kp.PublicKey)
	require.NoError(t, err)
	raw, err := ct.MarshalBinary()
	require.NoError(t, err)

	decoded, err := ParseCiphertext(raw)
	require.NoError(t, err)
	assert.False(t, decoded.BoundTo(kp.PublicKey))

	bound := decoded.BindKey(kp.PublicKey)
	assert.True(t, bound.BoundTo(kp.PublicKey))

	foreign, err := Encrypt(1, other.PublicKey)
	require.NoError(t, err)
	_, err = Add(bound, foreign)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestConcurrentDecrypt(t *testing.T) {
	kp := mustKeypair(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for i := range workers {
		wg.Add(1)
		go func(m uint32) {
			defer wg.Done()
			ct, err := Encrypt(m, kp.PublicKey)
			if err != nil {
				errs <- err.Error()
				return
			}
			if got := Decrypt(ct, kp.PrivateKey); got != m {
				errs <- "mismatch"
			}
		}(uint32(i) * 1000)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestFallbackAmountInRange(t *testing.T) {
	kp := mustKeypair(t)
	got := fallbackAmount(kp.PublicKey.point)
	want := binary.LittleEndian.Uint32(kp.PublicKey.Bytes()[:4]) & MaxAmount
	assert.Equal(t, want, got)
}
