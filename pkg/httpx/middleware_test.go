package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/trackr/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type staticAuthenticator map[string]httpx.Principal

func (a staticAuthenticator) AuthenticateBearer(_ context.Context, token string) (httpx.Principal, error) {
	p, ok := a[token]
	if !ok {
		return httpx.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler(), mw("first"), mw("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	auth := staticAuthenticator{"good": {AccountUUID: "u-1", Username: "alice@example.com"}}

	var seen httpx.Principal
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), httpx.AuthnMiddleware(auth))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic Zm9vOmJhcg==", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer good", want: http.StatusOK},
		{name: "scheme is case-insensitive", header: "bearer good", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
			} else {
				require.Equal(t, "u-1", seen.AccountUUID)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	auth := staticAuthenticator{"good": {AccountUUID: "u-1"}}
	serve := func(policy httpx.Policy, token string) int {
		mws := []httpx.Middleware{httpx.Guard(policy)}
		if token != "" {
			mws = append([]httpx.Middleware{httpx.AuthnMiddleware(auth)}, mws...)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		httpx.Chain(okHandler(), mws...).ServeHTTP(rec, req)
		return rec.Code
	}

	allow := func(*http.Request, httpx.Principal) (bool, error) { return true, nil }
	deny := func(*http.Request, httpx.Principal) (bool, error) { return false, nil }
	fail := func(*http.Request, httpx.Principal) (bool, error) { return false, errors.New("db down") }

	require.Equal(t, http.StatusOK, serve(allow, "good"))
	require.Equal(t, http.StatusForbidden, serve(deny, "good"))
	require.Equal(t, http.StatusInternalServerError, serve(fail, "good"))
	require.Equal(t, http.StatusUnauthorized, serve(allow, ""))
}
