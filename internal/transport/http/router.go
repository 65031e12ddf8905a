// Package httptransport assembles the HTTP surface: user routes under /v1,
// collaborator routes under /internal, plus health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	complianceHandler "discard/internal/compliance/handler"
	nullifierHandler "discard/internal/nullifier/handler"
	"discard/internal/platform/metrics"
	"discard/internal/platform/middleware"
	shieldingHandler "discard/internal/shielding/handler"
	stealthHandler "discard/internal/stealth/handler"
	"discard/pkg/platform/httputil"
	authmw "discard/pkg/platform/middleware/auth"
	"discard/pkg/platform/middleware/internaltoken"
	"discard/pkg/platform/middleware/request"
	"discard/pkg/platform/middleware/requesttime"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router mounts. Nil handlers are skipped.
type Deps struct {
	Addresses  *stealthHandler.Handler
	Compliance *complianceHandler.Handler
	Shielding  *shieldingHandler.Handler
	Nullifiers *nullifierHandler.Handler

	Validator     authmw.JWTValidator
	InternalToken string
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	HealthChecks  map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	if d.Logger != nil {
		r.Use(middleware.AccessLog(d.Logger))
	}
	if d.Metrics != nil {
		r.Use(middleware.Instrument(d.Metrics))
	}

	r.Get("/health", healthHandler(d.HealthChecks))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.HandlerFor(d.Gatherer))
	} else {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Validator, d.Logger))
		if d.Addresses != nil {
			d.Addresses.RegisterUser(r)
		}
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(internaltoken.RequireInternalToken(d.InternalToken, d.Logger))
		if d.Addresses != nil {
			d.Addresses.RegisterInternal(r)
		}
		if d.Compliance != nil {
			d.Compliance.Register(r)
		}
		if d.Shielding != nil {
			d.Shielding.Register(r)
		}
		if d.Nullifiers != nil {
			d.Nullifiers.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
