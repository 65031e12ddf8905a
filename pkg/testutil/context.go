package testutil

import (
	"net/http"
	"time"

	id "discard/pkg/domain"
	"discard/pkg/requestcontext"
)

// AsUser is middleware that stands in for bearer auth in handler tests.
func AsUser(user id.UserID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(r.Context(), user)))
		})
	}
}

// AtTime pins the request clock so expiry windows are deterministic.
func AtTime(now time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
		})
	}
}
