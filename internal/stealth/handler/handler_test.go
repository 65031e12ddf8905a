package handler

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discard/internal/stealth/keys"
	"discard/internal/stealth/service"
	"discard/internal/stealth/store"
	id "discard/pkg/domain"
	"discard/pkg/testutil"
)

func newRouter(t *testing.T, user id.UserID) chi.Router {
	t.Helper()
	sealer, err := keys.NewSeedSealer(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemoryStore(), sealer)
	require.NoError(t, err)

	h := New(svc, nil)
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(testutil.AsUser(user))
		h.RegisterUser(r)
	})
	r.Route("/internal", h.RegisterInternal)
	return r
}

func TestAddressFlow(t *testing.T) {
	router := newRouter(t, id.UserID(uuid.New()))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/addresses/current"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/v1/addresses"))
	require.Equal(t, http.StatusCreated, rr.Code)
	created := testutil.UnmarshalResponse[AddressResponse](t, rr)
	assert.Equal(t, "active", created.Status)
	assert.NotEmpty(t, created.StealthAddress)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/addresses/current"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "stealth_address", created.StealthAddress)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/deposits", map[string]any{
		"stealth_address": created.StealthAddress,
		"sender_address":  "sender",
		"tx_ref":          "tx-1",
		"amount":          1000,
		"token_ref":       "usdc",
	}))
	testutil.AssertStatusOK(t, rr)
	funded := testutil.UnmarshalResponse[AddressResponse](t, rr)
	assert.Equal(t, "funded", funded.Status)
	require.NotNil(t, funded.DepositAmount)
	assert.Equal(t, uint64(1000), *funded.DepositAmount)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/deposits", map[string]any{
		"stealth_address": created.StealthAddress,
		"tx_ref":          "tx-2",
		"amount":          5,
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_state_transition")

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/addresses?limit=10"))
	testutil.AssertStatusOK(t, rr)
	list := testutil.UnmarshalResponse[AddressListResponse](t, rr)
	require.Len(t, list.Addresses, 1)
	assert.Equal(t, "funded", list.Addresses[0].Status)
}

func TestResponsesNeverCarrySeed(t *testing.T) {
	router := newRouter(t, id.UserID(uuid.New()))
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/v1/addresses"))
	require.Equal(t, http.StatusCreated, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "seed")
}

func TestDepositErrors(t *testing.T) {
	router := newRouter(t, id.UserID(uuid.New()))

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing tx ref", map[string]any{"stealth_address": "abc", "amount": 1}, http.StatusBadRequest, "validation_error"},
		{"malformed address", map[string]any{"stealth_address": "abc", "tx_ref": "t", "amount": 1}, http.StatusBadRequest, "validation_error"},
		{"unknown field", map[string]any{"stealth_address": "abc", "tx_ref": "t", "amount": 1, "seed": "x"}, http.StatusBadRequest, "bad_request"},
		{"unknown address", map[string]any{"stealth_address": "11111111111111111111111111111111", "tx_ref": "t", "amount": 1}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/internal/deposits", tt.body))
			testutil.AssertStatusAndError(t, rr, tt.status, tt.code)
		})
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	router := newRouter(t, id.UserID(uuid.New()))
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/addresses?limit=abc"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestGenerateWithoutUser(t *testing.T) {
	router := newRouter(t, id.UserID{})
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/v1/addresses"))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestDepositAfterGraceWindow(t *testing.T) {
	sealer, err := keys.NewSeedSealer(bytes.Repeat([]byte{4}, 32))
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemoryStore(), sealer)
	require.NoError(t, err)
	h := New(svc, nil)
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	issuing := chi.NewRouter()
	issuing.Use(testutil.AtTime(created), testutil.AsUser(id.UserID(uuid.New())))
	h.RegisterUser(issuing)

	late := chi.NewRouter()
	late.Use(testutil.AtTime(created.Add(2 * time.Hour)))
	h.RegisterInternal(late)

	rr := testutil.DoRequest(issuing, testutil.NewRequest(t, http.MethodPost, "/addresses"))
	require.Equal(t, http.StatusCreated, rr.Code)
	addr := testutil.UnmarshalResponse[AddressResponse](t, rr)
	assert.Equal(t, created.Add(time.Hour), addr.GraceExpiresAt)

	rr = testutil.DoRequest(late, testutil.NewJSONRequest(t, http.MethodPost, "/deposits", map[string]any{
		"stealth_address": addr.StealthAddress,
		"tx_ref":          "tx-late",
		"amount":          10,
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusGone, "expired")
}
