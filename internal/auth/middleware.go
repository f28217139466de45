package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// Middleware checks for a Bearer token and resolves it against the
// rotating JWKS Keystore, rejecting the request on anything wrong.
func (k *Keystore) Middleware(onUnauthorized func(w http.ResponseWriter, detail string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := r.Header.Get("Authorization")
			if !strings.HasPrefix(hdr, "Bearer ") {
				onUnauthorized(w, "missing bearer token")
				return
			}
			tokenStr := strings.TrimPrefix(hdr, "Bearer ")
			principal, err := k.VerifyBearer(tokenStr)
			if err != nil {
				onUnauthorized(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the principal a Middleware call placed on the
// request context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}
