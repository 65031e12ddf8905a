package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"discard/internal/nullifier/models"
	"discard/internal/nullifier/service"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	MarkUsed(ctx context.Context, req service.MarkUsedRequest) (*models.Record, error)
	Get(ctx context.Context, nullifier string) (*models.Record, error)
	CheckBatch(ctx context.Context, nullifiers []string) ([]models.BatchResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the registry routes behind the internal token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/nullifiers", h.HandleMarkUsed)
	r.Post("/nullifiers/check", h.HandleCheck)
	r.Get("/nullifiers/{nullifier}", h.HandleGet)
}

// HandleMarkUsed handles POST /nullifiers.
func (h *Handler) HandleMarkUsed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[MarkUsedRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	record, err := h.service.MarkUsed(ctx, service.MarkUsedRequest{
		Nullifier: req.Nullifier,
		ProofType: models.ProofType(req.ProofType),
		ExpiresAt: req.ExpiresAt,
		ProofHash: req.ProofHash,
		UsedBy:    req.UsedBy,
		Context:   req.Context,
	})
	if err != nil {
		h.logFailure(ctx, "mark nullifier used failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleCheck handles POST /nullifiers/check.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	results, err := h.service.CheckBatch(ctx, req.Nullifiers)
	if err != nil {
		h.logFailure(ctx, "check nullifiers failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &CheckResponse{Results: results})
}

// HandleGet handles GET /nullifiers/{nullifier}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Get(ctx, chi.URLParam(r, "nullifier"))
	if err != nil {
		h.logFailure(ctx, "get nullifier failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
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
