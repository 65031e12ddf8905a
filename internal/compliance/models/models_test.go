package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/sentinel"
)

var (
	enclave    = strings.Repeat("ab", 32)
	commitment = strings.Repeat("cd", 32)
)

func validProof(now time.Time) *Proof {
	return &Proof{
		Nullifier:         "nf-1",
		AddressCommitment: commitment,
		Compliant:         true,
		RiskLevel:         RiskLow,
		MrEnclave:         enclave,
		CheckedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
		Status:            StatusValid,
	}
}

func TestProofValidate(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("valid proof passes", func(t *testing.T) {
		require.NoError(t, validProof(now).Validate(now))
	})

	t.Run("non-compliant proof is still valid input", func(t *testing.T) {
		p := validProof(now)
		p.Compliant = false
		p.RiskLevel = RiskCritical
		require.NoError(t, p.Validate(now))
	})

	cases := map[string]func(p *Proof){
		"empty nullifier":       func(p *Proof) { p.Nullifier = " " },
		"long nullifier":        func(p *Proof) { p.Nullifier = strings.Repeat("n", MaxNullifierLength+1) },
		"short enclave":         func(p *Proof) { p.MrEnclave = "abcd" },
		"uppercase enclave":     func(p *Proof) { p.MrEnclave = strings.ToUpper(enclave) },
		"non-hex signer":        func(p *Proof) { p.MrSigner = strings.Repeat("zz", 32) },
		"missing commitment":    func(p *Proof) { p.AddressCommitment = "" },
		"unknown risk level":    func(p *Proof) { p.RiskLevel = "severe" },
		"expiry not in future":  func(p *Proof) { p.ExpiresAt = now },
		"oversized attestation": func(p *Proof) { p.AttestationQuote = make([]byte, MaxAttestationQuote+1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validProof(now)
			mutate(p)
			err := p.Validate(now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestProofConsume(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("valid proof becomes used", func(t *testing.T) {
		p := validProof(now)
		require.NoError(t, p.Consume("addr-1", now))
		assert.Equal(t, StatusUsed, p.Status)
		assert.Equal(t, "addr-1", p.UsedFor)
		require.NotNil(t, p.UsedAt)
		assert.Equal(t, now, *p.UsedAt)
	})

	t.Run("second consumption is rejected", func(t *testing.T) {
		p := validProof(now)
		require.NoError(t, p.Consume("", now))
		assert.ErrorIs(t, p.Consume("", now), sentinel.ErrAlreadyUsed)
	})

	t.Run("expired proof flips to expired", func(t *testing.T) {
		p := validProof(now)
		assert.ErrorIs(t, p.Consume("", p.ExpiresAt), sentinel.ErrExpired)
		assert.Equal(t, StatusExpired, p.Status)
		assert.Nil(t, p.UsedAt)
	})

	t.Run("revoked proof cannot be consumed", func(t *testing.T) {
		p := validProof(now)
		require.NoError(t, p.Revoke("sanctions update", now))
		assert.ErrorIs(t, p.Consume("", now), sentinel.ErrInvalidState)
	})
}

func TestProofRevoke(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, status := range []Status{StatusValid, StatusUsed, StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			p := validProof(now)
			p.Status = status
			require.NoError(t, p.Revoke("list update", now))
			assert.Equal(t, StatusRevoked, p.Status)
			assert.Equal(t, "list update", p.RevocationReason)
		})
	}

	t.Run("revoked twice", func(t *testing.T) {
		p := validProof(now)
		require.NoError(t, p.Revoke("", now))
		assert.ErrorIs(t, p.Revoke("", now), sentinel.ErrInvalidState)
	})
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	p := validProof(now)
	p.AttestationQuote = []byte{1, 2, 3}
	require.NoError(t, p.Consume("x", now))

	c := p.Clone()
	c.AttestationQuote[0] = 9
	*c.UsedAt = now.Add(time.Hour)

	assert.Equal(t, byte(1), p.AttestationQuote[0])
	assert.Equal(t, now, *p.UsedAt)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxListLimit, ClampLimit(MaxListLimit+1))
}

func TestParseRiskLevel(t *testing.T) {
	r, err := ParseRiskLevel(" High ")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, r)

	_, err = ParseRiskLevel("unknown")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
