package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/trackr/pkg/slogx"
)

// Policy decides whether the principal may proceed with r.
type Policy func(r *http.Request, p Principal) (bool, error)

// Guard runs policy after authentication. A denial is a 403, a policy error
// is a 500. Requests without a principal are rejected as unauthenticated.
func Guard(policy Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			allowed, err := policy(r, p)
			if err != nil {
				slogx.FromContext(r.Context()).Error("authorization policy failed", "error", err)
				WriteJSON(w, http.StatusInternalServerError, map[string]string{
					"error":             "server_error",
					"error_description": "Unable to evaluate access",
				})
				return
			}
			if !allowed {
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "access_denied",
					"error_description": "You are not allowed to perform this action",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
