package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discard/internal/compliance/adapters"
	complianceModels "discard/internal/compliance/models"
	complianceService "discard/internal/compliance/service"
	complianceStore "discard/internal/compliance/store"
	"discard/internal/elgamal"
	nullifierService "discard/internal/nullifier/service"
	nullifierStore "discard/internal/nullifier/store"
	"discard/internal/shielding/service"
	"discard/internal/shielding/store"
	"discard/internal/stealth/keys"
	stealthModels "discard/internal/stealth/models"
	stealthService "discard/internal/stealth/service"
	stealthStore "discard/internal/stealth/store"
	"discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/requestcontext"

	"github.com/google/uuid"
)

type pipeline struct {
	stealth    *stealthService.Service
	compliance *complianceService.Service
	shielding  *service.Service
	pool       *elgamal.Keypair
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	sealer, err := keys.NewSeedSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	stealth, err := stealthService.New(stealthStore.NewInMemoryStore(), sealer)
	require.NoError(t, err)
	nullifiers := nullifierService.New(nullifierStore.NewInMemoryStore())
	compliance := complianceService.New(complianceStore.NewInMemoryStore(),
		complianceService.WithNullifiers(nullifiers),
		complianceService.WithAddresses(adapters.NewStealthAdapter(stealth)))
	pool, err := elgamal.GenerateKeypair()
	require.NoError(t, err)
	shielding, err := service.New(store.NewInMemoryStore(), nullifiers, compliance, stealth, "pool-main", pool.PublicKey)
	require.NoError(t, err)
	return &pipeline{stealth: stealth, compliance: compliance, shielding: shielding, pool: pool}
}

func at(base time.Time, d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), base.Add(d))
}

func (p *pipeline) fundAndScreen(t *testing.T, base time.Time, amount uint64, nullifier string) string {
	t.Helper()
	addr, err := p.stealth.Generate(at(base, 0), domain.UserID(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, base.Add(30*time.Minute), addr.ExpiresAt)

	funded, err := p.stealth.RecordDeposit(at(base, 5*time.Minute), stealthService.DepositEvent{
		StealthAddress: addr.StealthAddress,
		SenderAddress:  "sender",
		TxRef:          "tx-" + nullifier,
		Amount:         amount,
	})
	require.NoError(t, err)
	require.Equal(t, stealthModels.StatusFunded, funded.Status)

	screening, err := p.compliance.Screen(at(base, 6*time.Minute), complianceService.ScreeningResult{
		StealthAddress: addr.StealthAddress,
		Nullifier:      nullifier,
		Compliant:      true,
		RiskLevel:      complianceModels.RiskLow,
		MrEnclave:      strings.Repeat("aa", 32),
	})
	require.NoError(t, err)
	require.True(t, screening.Passed)
	return addr.StealthAddress
}

func TestReceiveScreenShieldConfirm(t *testing.T) {
	p := newPipeline(t)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	a := p.fundAndScreen(t, base, 1500, "nf-proof-a")
	b := p.fundAndScreen(t, base, 2500, "nf-proof-b")

	out, err := p.shielding.Shield(at(base, 7*time.Minute), service.ShieldRequest{
		StealthAddress: a, IntentNullifier: "nf-intent-a", ComplianceNullifier: "nf-proof-a",
	})
	require.NoError(t, err)
	assert.Equal(t, stealthModels.StatusShielding, out.Address.Status)

	_, err = p.shielding.Shield(at(base, 7*time.Minute), service.ShieldRequest{
		StealthAddress: b, IntentNullifier: "nf-intent-b", ComplianceNullifier: "nf-proof-b",
	})
	require.NoError(t, err)

	total, err := p.shielding.AuditPoolBalance(at(base, 8*time.Minute), p.pool.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(4000), total)

	shielded, err := p.shielding.Confirm(at(base, 8*time.Minute), a, "sig-a")
	require.NoError(t, err)
	assert.Equal(t, stealthModels.StatusShielded, shielded.Status)

	_, err = p.stealth.RecordDeposit(at(base, 9*time.Minute), stealthService.DepositEvent{
		StealthAddress: a, TxRef: "tx-late", Amount: 1,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	proof, err := p.compliance.GetByNullifier(at(base, 9*time.Minute), "nf-proof-a")
	require.NoError(t, err)
	assert.Equal(t, complianceModels.StatusUsed, proof.Status)
	assert.Equal(t, a, proof.UsedFor)
}

func TestShieldReplays(t *testing.T) {
	p := newPipeline(t)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	a := p.fundAndScreen(t, base, 100, "nf-proof")

	_, err := p.shielding.Shield(at(base, 7*time.Minute), service.ShieldRequest{
		StealthAddress: a, IntentNullifier: "nf-intent", ComplianceNullifier: "nf-proof",
	})
	require.NoError(t, err)

	_, err = p.shielding.Shield(at(base, 7*time.Minute), service.ShieldRequest{
		StealthAddress: a, IntentNullifier: "nf-intent", ComplianceNullifier: "nf-proof",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition), "address already shielding")

	pool, err := p.shielding.PoolBalance(at(base, 8*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pool.Version)
	assert.Equal(t, int64(1), pool.DepositCount)
}

func TestShieldWithExpiredProof(t *testing.T) {
	p := newPipeline(t)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	a := p.fundAndScreen(t, base, 100, "nf-proof")

	_, err := p.shielding.Shield(at(base, 48*time.Hour), service.ShieldRequest{
		StealthAddress: a, IntentNullifier: "nf-intent", ComplianceNullifier: "nf-proof",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))

	proof, err := p.compliance.GetByNullifier(at(base, 48*time.Hour), "nf-proof")
	require.NoError(t, err)
	assert.Equal(t, complianceModels.StatusExpired, proof.Status)

	view, err := p.stealth.GetByAddress(at(base, 48*time.Hour), a)
	require.NoError(t, err)
	assert.Equal(t, stealthModels.StatusFunded, view.Status, "funded deposits are never expired")
}
