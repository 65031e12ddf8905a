// Package auth guards the user routes with a bearer token.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "discard/pkg/domain"
	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the subset of token claims the routes rely on.
type JWTClaims struct {
	UserID string
	JTI    string
}

var errUnauthorized = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid bearer token")

// RequireAuth validates the bearer token and stores the owning user in the
// context. Every failure gets the same response.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason string, args ...any) {
				logger.WarnContext(ctx, "unauthorized request",
					append([]any{"reason", reason, "request_id", requestcontext.RequestID(ctx)}, args...)...)
				httputil.WriteError(w, errUnauthorized)
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				reject("missing token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject("invalid token", "error", err)
				return
			}
			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				reject("bad subject")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
		})
	}
}
