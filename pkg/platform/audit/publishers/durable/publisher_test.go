package durable

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "discard/pkg/platform/audit"
	"discard/pkg/platform/audit/store/memory"
	"discard/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func TestEmitClassifiesAndStamps(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := NewMetrics(prometheus.NewRegistry())
	p := New(store, WithMetrics(m))
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	require.NoError(t, p.Emit(ctx, audit.Event{
		Subject:  "nf-1",
		Action:   string(audit.EventComplianceProofRevoked),
		Category: audit.CategoryOperations,
		Reason:   "sanctions list update",
	}))
	require.NoError(t, p.Emit(ctx, audit.Event{Subject: "nf-2", Action: string(audit.EventNullifierReplayRejected)}))

	events, err := store.ListBySubject(context.Background(), "nf-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category, "category follows the action")
	assert.Equal(t, now, events[0].Timestamp)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Written.WithLabelValues("compliance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Written.WithLabelValues("security")))
}

func TestEmitRequiresSubjectAndAction(t *testing.T) {
	p := New(memory.NewInMemoryStore())

	assert.Error(t, p.Emit(context.Background(), audit.Event{Action: "x"}))
	assert.Error(t, p.Emit(context.Background(), audit.Event{Subject: "x"}))
}

func TestFailureHandlingByCategory(t *testing.T) {
	var logs bytes.Buffer
	m := NewMetrics(prometheus.NewRegistry())
	p := New(failingStore{}, WithMetrics(m), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	err := p.Emit(context.Background(), audit.Event{Subject: "addr", Action: string(audit.EventShieldStarted)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist compliance audit event")
	assert.Contains(t, logs.String(), "level=ERROR")

	logs.Reset()
	err = p.Emit(context.Background(), audit.Event{Subject: "addr", Action: string(audit.EventAddressGenerated)})
	assert.NoError(t, err, "operations events are dropped on failure")
	assert.Contains(t, logs.String(), "level=WARN")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures.WithLabelValues("compliance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures.WithLabelValues("operations")))
}
