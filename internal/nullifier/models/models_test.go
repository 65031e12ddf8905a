package models

import (
	"strings"
	"testing"
	"time"

	dErrors "discard/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("builds active record", func(t *testing.T) {
		r, err := NewRecord("nf-1", ProofTypeShieldIntent, now.Add(time.Hour), now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, r.Status)
		assert.Equal(t, now, r.UsedAt)
		assert.False(t, r.IsExpired(now))
		assert.True(t, r.IsExpired(now.Add(time.Hour)))
	})

	tests := []struct {
		name      string
		nullifier string
		proofType ProofType
		expiresAt time.Time
	}{
		{"empty nullifier", "", ProofTypeCompliance, now.Add(time.Hour)},
		{"whitespace nullifier", "   ", ProofTypeCompliance, now.Add(time.Hour)},
		{"too long", strings.Repeat("n", MaxNullifierLength+1), ProofTypeCompliance, now.Add(time.Hour)},
		{"unknown proof type", "nf", ProofType("bogus"), now.Add(time.Hour)},
		{"expiry in the past", "nf", ProofTypeCompliance, now.Add(-time.Second)},
		{"expiry equals now", "nf", ProofTypeCompliance, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord(tt.nullifier, tt.proofType, tt.expiresAt, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("accepts max length", func(t *testing.T) {
		_, err := NewRecord(strings.Repeat("n", MaxNullifierLength), ProofTypeVelocity, now.Add(time.Minute), now)
		assert.NoError(t, err)
	})
}

func TestRecordClone(t *testing.T) {
	r := &Record{Nullifier: "nf", Context: map[string]string{"k": "v"}}
	c := r.Clone()
	c.Context["k"] = "changed"
	assert.Equal(t, "v", r.Context["k"])
}
