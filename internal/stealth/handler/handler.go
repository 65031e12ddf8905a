package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"discard/internal/stealth/models"
	"discard/internal/stealth/service"
	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

// Service defines the address lifecycle operations exposed over HTTP.
type Service interface {
	Generate(ctx context.Context, userID id.UserID) (*models.AddressView, error)
	GetCurrent(ctx context.Context, userID id.UserID) (*models.AddressView, error)
	History(ctx context.Context, userID id.UserID, limit int) ([]*models.AddressView, error)
	RecordDeposit(ctx context.Context, ev service.DepositEvent) (*models.AddressView, error)
}

// Handler serves receive address endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterUser mounts the routes for authenticated users.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/addresses", h.HandleGenerate)
	r.Get("/addresses/current", h.HandleCurrent)
	r.Get("/addresses", h.HandleHistory)
}

// RegisterInternal mounts the chain monitor intake.
func (h *Handler) RegisterInternal(r chi.Router) {
	r.Post("/deposits", h.HandleDeposit)
}

// HandleGenerate handles POST /addresses.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Generate(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "generate stealth address failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromView(view))
}

// HandleCurrent handles GET /addresses/current.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.GetCurrent(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "get current stealth address failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleHistory handles GET /addresses?limit=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	views, err := h.service.History(ctx, requestcontext.UserID(ctx), limit)
	if err != nil {
		h.logFailure(ctx, "list stealth addresses failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromViews(views))
}

// HandleDeposit handles POST /deposits.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DepositRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	view, err := h.service.RecordDeposit(ctx, service.DepositEvent{
		StealthAddress: req.StealthAddress,
		SenderAddress:  req.SenderAddress,
		TxRef:          req.TxRef,
		Amount:         req.Amount,
		TokenRef:       req.TokenRef,
	})
	if err != nil {
		h.logFailure(ctx, "record deposit failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
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
