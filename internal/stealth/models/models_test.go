package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discard/pkg/platform/sentinel"
	"discard/pkg/testutil"
)

var allStatuses = []Status{StatusActive, StatusFunded, StatusShielding, StatusShielded, StatusQuarantined, StatusExpired}

var allEvents = []Event{EventDepositObserved, EventShieldSubmitted, EventShieldConfirmed, EventComplianceFailed, EventGraceElapsed}

func newAddress(createdAt time.Time) *ReceiveAddress {
	expires := createdAt.Add(30 * time.Minute)
	return &ReceiveAddress{
		StealthAddress: "addr",
		Status:         StatusActive,
		CreatedAt:      createdAt,
		ExpiresAt:      expires,
		GraceExpiresAt: expires.Add(30 * time.Minute),
		UpdatedAt:      createdAt,
	}
}

func TestTransitionTable(t *testing.T) {
	legal := map[Status]map[Event]Status{
		StatusActive:    {EventDepositObserved: StatusFunded, EventComplianceFailed: StatusQuarantined, EventGraceElapsed: StatusExpired},
		StatusFunded:    {EventShieldSubmitted: StatusShielding, EventComplianceFailed: StatusQuarantined},
		StatusShielding: {EventShieldConfirmed: StatusShielded},
	}
	for _, from := range allStatuses {
		for _, ev := range allEvents {
			to, err := Transition(from, ev)
			want, ok := legal[from][ev]
			if ok {
				require.NoError(t, err, "%s on %s", ev, from)
				assert.Equal(t, want, to)
				continue
			}
			assert.ErrorIs(t, err, sentinel.ErrInvalidState, "%s on %s", ev, from)
			assert.Equal(t, from, to)
		}
	}
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	for _, s := range allStatuses {
		if !s.IsTerminal() {
			continue
		}
		for _, ev := range allEvents {
			_, err := Transition(s, ev)
			assert.ErrorIs(t, err, sentinel.ErrInvalidState)
		}
	}
}

func TestSourcesFor(t *testing.T) {
	assert.Equal(t, []Status{StatusActive}, SourcesFor(EventDepositObserved))
	assert.Equal(t, []Status{StatusActive, StatusFunded}, SourcesFor(EventComplianceFailed))
	assert.Equal(t, []Status{StatusShielding}, SourcesFor(EventShieldConfirmed))
}

func TestAddressLifecycle(t *testing.T) {
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	testutil.Given(t, "a fresh address", func(t *testing.T) {
		a := newAddress(created)
		assert.Equal(t, created.Add(time.Hour), a.GraceExpiresAt)
		assert.True(t, a.IsCurrent(created))

		testutil.When(t, "a deposit is observed inside the window", func(t *testing.T) {
			require.NoError(t, a.Fund(Deposit{SenderAddress: "sender", TxRef: "tx-1", Amount: 1000}, created.Add(5*time.Minute)))

			testutil.Then(t, "the address is funded with the deposit recorded", func(t *testing.T) {
				assert.Equal(t, StatusFunded, a.Status)
				require.NotNil(t, a.DepositAmount)
				assert.Equal(t, uint64(1000), *a.DepositAmount)
				assert.Equal(t, "sender", a.SenderAddress)
				assert.True(t, a.IsCurrent(created.Add(2*time.Hour)), "in-flight deposits stay current")
			})

			testutil.Then(t, "a second deposit is rejected", func(t *testing.T) {
				err := a.Fund(Deposit{Amount: 1}, created.Add(6*time.Minute))
				assert.ErrorIs(t, err, sentinel.ErrInvalidState)
			})

			testutil.Then(t, "the grace sweep leaves it alone", func(t *testing.T) {
				expired, err := a.Expire(created.Add(3 * time.Hour))
				require.NoError(t, err)
				assert.False(t, expired)
				assert.Equal(t, StatusFunded, a.Status)
			})
		})

		testutil.When(t, "shielding runs to completion", func(t *testing.T) {
			require.NoError(t, a.StartShielding(created.Add(7*time.Minute)))
			require.NoError(t, a.ConfirmShield("sig", created.Add(8*time.Minute)))

			testutil.Then(t, "the address is terminal", func(t *testing.T) {
				assert.Equal(t, StatusShielded, a.Status)
				assert.Equal(t, "sig", a.ShieldTxSig)
				assert.ErrorIs(t, a.Quarantine("late", created.Add(9*time.Minute)), sentinel.ErrInvalidState)
				assert.ErrorIs(t, a.Fund(Deposit{Amount: 1}, created.Add(9*time.Minute)), sentinel.ErrInvalidState)
			})
		})
	})

	testutil.Given(t, "an address with no deposit", func(t *testing.T) {
		testutil.When(t, "a deposit arrives after the grace window", func(t *testing.T) {
			a := newAddress(created)
			err := a.Fund(Deposit{Amount: 5}, created.Add(time.Hour))

			testutil.Then(t, "it is expired instead of funded", func(t *testing.T) {
				assert.ErrorIs(t, err, sentinel.ErrExpired)
				assert.Equal(t, StatusExpired, a.Status)
				assert.Nil(t, a.DepositAmount)
			})
		})

		testutil.When(t, "a deposit arrives between expiry and grace end", func(t *testing.T) {
			a := newAddress(created)
			err := a.Fund(Deposit{Amount: 5}, created.Add(45*time.Minute))

			testutil.Then(t, "it is accepted", func(t *testing.T) {
				require.NoError(t, err)
				assert.Equal(t, StatusFunded, a.Status)
			})
		})

		testutil.When(t, "the sweep runs after the grace window", func(t *testing.T) {
			a := newAddress(created)
			expired, err := a.Expire(created.Add(time.Hour))

			testutil.Then(t, "it is expired and never accepts a deposit", func(t *testing.T) {
				require.NoError(t, err)
				assert.True(t, expired)
				assert.ErrorIs(t, a.Fund(Deposit{Amount: 1}, created.Add(time.Hour)), sentinel.ErrInvalidState)
			})
		})

		testutil.When(t, "screening fails", func(t *testing.T) {
			a := newAddress(created)
			require.NoError(t, a.Quarantine("sanctioned sender", created.Add(time.Minute)))

			testutil.Then(t, "it is quarantined with the failed result recorded", func(t *testing.T) {
				assert.Equal(t, StatusQuarantined, a.Status)
				require.NotNil(t, a.CompliancePassed)
				assert.False(t, *a.CompliancePassed)
				assert.Equal(t, "sanctioned sender", a.QuarantineReason)
			})
		})
	})
}

func TestRecordComplianceKeepsStatus(t *testing.T) {
	now := time.Now()
	a := newAddress(now)
	a.RecordCompliance(true, "clean", now)
	assert.Equal(t, StatusActive, a.Status)
	require.NotNil(t, a.CompliancePassed)
	assert.True(t, *a.CompliancePassed)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	a := newAddress(now)
	a.SealedSeed = []byte{1, 2, 3}
	require.NoError(t, a.Fund(Deposit{Amount: 10}, now))

	c := a.Clone()
	c.SealedSeed[0] = 9
	*c.DepositAmount = 11

	assert.Equal(t, byte(1), a.SealedSeed[0])
	assert.Equal(t, uint64(10), *a.DepositAmount)
}
