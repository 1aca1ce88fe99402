package authsdk_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *authsdk.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return authsdk.NewClient(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginCreatesSession(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login/access-token":
			var req authsdk.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "alice@example.com", req.Username)
			writeJSON(w, http.StatusOK, authsdk.LoginResponse{
				Token: "tok", TokenType: "Bearer", ExpiresIn: 3600, CredentialsStale: true,
			})
		case "/api/v1/users/me":
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, authsdk.UserResponse{UUID: "u-1", Username: "alice@example.com"})
		default:
			http.NotFound(w, r)
		}
	})

	session, err := client.Login(t.Context(), "alice@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", session.Token())
	require.True(t, session.CredentialsStale())
	require.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt(), time.Minute)

	me, err := session.Me(t.Context())
	require.NoError(t, err)
	require.Equal(t, "u-1", me.UUID)
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/register/open":
			writeJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
				Error:            authsdk.ErrorCodeValidation,
				ErrorDescription: "Request validation failed",
			})
		case "/api/v1/auth/reset-password":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	})

	_, err := client.Register(t.Context(), authsdk.RegisterRequest{Username: "x"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeValidation, apiErr.Code)

	err = client.ResetPassword(t.Context(), "tok", "pw")
	require.True(t, authsdk.IsStatus(err, http.StatusBadGateway))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeServerError, apiErr.Code)
}

func TestAcceptedEndpointsEscapeUsername(t *testing.T) {
	var paths []string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		writeJSON(w, http.StatusAccepted, authsdk.MessageResponse{Message: "ok"})
	})

	require.NoError(t, client.RequestPasswordRecovery(t.Context(), "a/b@example.com"))
	require.NoError(t, client.ResendVerification(t.Context(), "alice@example.com"))
	require.Equal(t, []string{
		"/api/v1/auth/password-recovery/a%2Fb@example.com",
		"/api/v1/auth/verify-account/resend/alice@example.com",
	}, paths)
}

func TestListUsersQueryValues(t *testing.T) {
	enabled := true
	q := authsdk.ListUsersQuery{
		Page:        2,
		Size:        10,
		Username:    "al",
		Enabled:     &enabled,
		Permissions: []string{"READ_USER", "DELETE_USER"},
	}

	v := q.Values()
	require.Equal(t, "2", v.Get("page"))
	require.Equal(t, "10", v.Get("size"))
	require.Equal(t, "al", v.Get("username"))
	require.Equal(t, "true", v.Get("enabled"))
	require.Empty(t, v.Get("deleted"))
	require.Equal(t, []string{"READ_USER", "DELETE_USER"}, v["permission"])
}
