package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/trackr/pkg/slogx"
)

// BearerAuthenticator resolves a raw bearer token to a principal. Any error
// is treated as an invalid token.
type BearerAuthenticator interface {
	AuthenticateBearer(ctx context.Context, token string) (Principal, error)
}

// AuthnMiddleware requires a valid "Authorization: Bearer" header and stores
// the resulting principal in the request context.
func AuthnMiddleware(a BearerAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			p, err := a.AuthenticateBearer(ctx, raw)
			if err != nil {
				log.Info("bearer authentication failed", "error", err)
				writeBearerError(w, "the access token is invalid or expired")
				return
			}

			ctx = ContextWithPrincipal(ctx, p)
			ctx = slogx.With(ctx, "account_uuid", p.AccountUUID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
