// Package internaltoken guards collaborator-facing routes (chain monitor,
// screening service, shielding submitter) with a shared secret header.
package internaltoken

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "discard/pkg/domain-errors"
	"discard/pkg/platform/httputil"
	"discard/pkg/requestcontext"
)

// Header carries the shared secret on internal routes.
const Header = "X-Internal-Token"

// RequireInternalToken rejects every request when expectedToken is empty.
func RequireInternalToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(Header)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "internal token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "internal token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
