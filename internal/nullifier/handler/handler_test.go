package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discard/internal/nullifier/models"
	"discard/internal/nullifier/service"
	"discard/internal/nullifier/store"
	"discard/pkg/testutil"
)

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Route("/internal", New(service.New(store.NewInMemoryStore()), nil).Register)
	return r
}

func TestMarkUsedAndCheck(t *testing.T) {
	router := newRouter()
	expires := time.Now().Add(time.Hour).UTC()

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/nullifiers", map[string]any{
		"nullifier":  "nf-1",
		"proof_type": "Transfer",
		"expires_at": expires,
		"used_by":    "wallet-a",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	record := testutil.UnmarshalResponse[models.Record](t, rr)
	assert.Equal(t, models.ProofTypeTransfer, record.ProofType)
	assert.Equal(t, models.StatusActive, record.Status)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/nullifiers", map[string]any{
		"nullifier":  "nf-1",
		"proof_type": "withdrawal",
		"expires_at": expires,
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "replay_detected")

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/nullifiers/check", map[string]any{
		"nullifiers": []string{"nf-2", "nf-1", "nf-2"},
	}))
	testutil.AssertStatusOK(t, rr)
	results := testutil.UnmarshalResponse[CheckResponse](t, rr).Results
	assert.Equal(t, []models.BatchResult{
		{Nullifier: "nf-2", Used: false},
		{Nullifier: "nf-1", Used: true},
		{Nullifier: "nf-2", Used: false},
	}, results)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/internal/nullifiers/nf-1"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "used_by", "wallet-a")
}

func TestNullifierErrors(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown proof type", http.MethodPost, "/internal/nullifiers",
			map[string]any{"nullifier": "nf", "proof_type": "loan", "expires_at": time.Now().Add(time.Hour)},
			http.StatusBadRequest, "validation_error"},
		{"missing expiry", http.MethodPost, "/internal/nullifiers",
			map[string]any{"nullifier": "nf", "proof_type": "transfer"},
			http.StatusBadRequest, "validation_error"},
		{"batch too large", http.MethodPost, "/internal/nullifiers/check",
			map[string]any{"nullifiers": strings.Split(strings.Repeat("n,", models.MaxBatchSize)+"n", ",")},
			http.StatusBadRequest, "validation_error"},
		{"missing batch", http.MethodPost, "/internal/nullifiers/check",
			map[string]any{},
			http.StatusBadRequest, "validation_error"},
		{"unknown nullifier", http.MethodGet, "/internal/nullifiers/nf-none",
			nil,
			http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == nil {
				req = testutil.NewRequest(t, tt.method, tt.path)
			} else {
				req = testutil.NewJSONRequest(t, tt.method, tt.path, tt.body)
			}
			testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), tt.status, tt.code)
		})
	}
}
