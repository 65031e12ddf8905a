// Package requestcontext carries request-scoped values (caller, request id,
// clock) through context so services never import net/http.
//
// Sweeps and tests pin the clock with WithTime; everything else falls back
// to the wall clock.
package requestcontext

import (
	"context"
	"time"

	id "discard/pkg/domain"
)

type key int

const (
	userIDKey key = iota
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// UserID is the authenticated caller, or the nil UUID on internal routes.
func UserID(ctx context.Context) id.UserID {
	u, _ := value[id.UserID](ctx, userIDKey)
	return u
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func RequestID(ctx context.Context) string {
	r, _ := value[string](ctx, requestIDKey)
	return r
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the pinned request time, if any, else time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
