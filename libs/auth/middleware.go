package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ctxKeyActor ctxKey = iota

// UserIDHeader is set by the gateway after it has authenticated the caller.
const UserIDHeader = "X-User-Id"

func ContextWithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, userID)
}

// ActorFromContext returns the authenticated user id, or "".
func ActorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyActor).(string)
	return v
}

// Middleware resolves the caller. With a verifier it requires a valid
// bearer token; without one it trusts UserIDHeader from the gateway.
// Requests with no identity get 401.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if v != nil {
				scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
				if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
					http.Error(w, "missing bearer token", http.StatusUnauthorized)
					return
				}
				claims, err := v.Verify(strings.TrimSpace(token))
				if err != nil {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				userID = claims.Subject
			} else {
				userID = strings.TrimSpace(r.Header.Get(UserIDHeader))
			}
			if userID == "" {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), userID)))
		})
	}
}
