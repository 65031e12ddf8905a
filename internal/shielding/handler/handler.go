package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"discard/internal/shielding/models"
	"discard/internal/shielding/service"
	stealthModels "discard/internal/stealth/models"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

// Service defines the shielding operations exposed over HTTP.
type Service interface {
	Shield(ctx context.Context, req service.ShieldRequest) (*models.Shield, error)
	Confirm(ctx context.Context, address, txSig string) (*stealthModels.AddressView, error)
	PoolBalance(ctx context.Context) (*models.PoolBalance, error)
}

// Handler serves the internal shielding endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the shielding routes behind the internal token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/shield", h.HandleShield)
	r.Post("/shield/{address}/confirm", h.HandleConfirm)
	r.Get("/pool/balance", h.HandlePoolBalance)
}

// HandleShield handles POST /shield.
func (h *Handler) HandleShield(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ShieldRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	out, err := h.service.Shield(ctx, service.ShieldRequest{
		StealthAddress:      req.StealthAddress,
		IntentNullifier:     req.IntentNullifier,
		ComplianceNullifier: req.ComplianceNullifier,
	})
	if err != nil {
		h.logFailure(ctx, "shield failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromShield(out))
}

// HandleConfirm handles POST /shield/{address}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ConfirmRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	view, err := h.service.Confirm(ctx, chi.URLParam(r, "address"), req.TxSig)
	if err != nil {
		h.logFailure(ctx, "confirm shield failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAddress(view))
}

// HandlePoolBalance handles GET /pool/balance.
func (h *Handler) HandlePoolBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pool, err := h.service.PoolBalance(ctx)
	if err != nil {
		h.logFailure(ctx, "read pool balance failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPool(pool))
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
