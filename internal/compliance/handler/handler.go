package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"discard/internal/compliance/models"
	"discard/internal/compliance/service"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

// Service defines the compliance operations exposed over HTTP.
type Service interface {
	Screen(ctx context.Context, result service.ScreeningResult) (*service.Screening, error)
	GetByNullifier(ctx context.Context, nullifier string) (*models.Proof, error)
	ListByAddressCommitment(ctx context.Context, commitment string, limit int) ([]*models.Proof, error)
	ListByEnclave(ctx context.Context, mrEnclave string, limit int) ([]*models.Proof, error)
	RevokeProof(ctx context.Context, nullifier, reason string) (*models.Proof, error)
}

// Handler serves the internal compliance endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the compliance routes. Callers are expected to guard the
// router with the internal token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/compliance/screenings", h.HandleScreen)
	r.Get("/compliance/proofs", h.HandleListProofs)
	r.Get("/compliance/proofs/{nullifier}", h.HandleGetProof)
	r.Post("/compliance/proofs/{nullifier}/revoke", h.HandleRevoke)
}

// HandleScreen handles POST /compliance/screenings.
func (h *Handler) HandleScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScreeningRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Screen(ctx, service.ScreeningResult{
		StealthAddress:   req.StealthAddress,
		Nullifier:        req.Nullifier,
		Compliant:        *req.Compliant,
		RiskLevel:        req.ParsedRiskLevel(),
		MrEnclave:        req.MrEnclave,
		MrSigner:         req.MrSigner,
		AttestationQuote: req.ParsedQuote(),
		ValidFor:         req.ValidFor(),
	})
	if err != nil {
		h.logFailure(ctx, "screening failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromScreening(result))
}

// HandleGetProof handles GET /compliance/proofs/{nullifier}.
func (h *Handler) HandleGetProof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.service.GetByNullifier(r.Context(), chi.URLParam(r, "nullifier"))
	if err != nil {
		h.logFailure(r.Context(), "get compliance proof failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProof(proof))
}

// HandleListProofs handles GET /compliance/proofs?commitment=|mr_enclave=&limit=.
func (h *Handler) HandleListProofs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	commitment, enclave := q.Get("commitment"), q.Get("mr_enclave")
	var (
		proofs []*models.Proof
		err    error
	)
	switch {
	case commitment != "" && enclave != "":
		err = dErrors.New(dErrors.CodeValidation, "specify either commitment or mr_enclave, not both")
	case commitment != "":
		proofs, err = h.service.ListByAddressCommitment(ctx, commitment, limit)
	case enclave != "":
		proofs, err = h.service.ListByEnclave(ctx, enclave, limit)
	default:
		err = dErrors.New(dErrors.CodeValidation, "commitment or mr_enclave is required")
	}
	if err != nil {
		h.logFailure(ctx, "list compliance proofs failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProofs(proofs))
}

// HandleRevoke handles POST /compliance/proofs/{nullifier}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	proof, err := h.service.RevokeProof(ctx, chi.URLParam(r, "nullifier"), req.Reason)
	if err != nil {
		h.logFailure(ctx, "revoke compliance proof failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProof(proof))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	if h.logger == nil {
		return
	}
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
