package authsdk

import (
	"context"
	"net/http"
	"time"
)

// Session carries a bearer token. There is no refresh: once the token
// expires, or the password changes, log in again.
type Session struct {
	client *Client

	token            string
	expiresAt        time.Time
	credentialsStale bool
}

// Token returns the raw bearer token.
func (s *Session) Token() string { return s.token }

// ExpiresAt is zero for sessions built with SessionFromToken.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// CredentialsStale reports the login-time advice to change the password.
func (s *Session) CredentialsStale() bool { return s.credentialsStale }

func (s *Session) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return s.client.doRequest(ctx, method, path, s.token, body)
}

// Me returns the authenticated user.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, apiPrefix+"/users/me", nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMe changes the authenticated user's names.
func (s *Session) UpdateMe(ctx context.Context, req UpdateMeRequest) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPut, apiPrefix+"/users/me", req)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword replaces the password. This session stops working
// afterwards.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	resp, err := s.do(ctx, http.MethodPatch, apiPrefix+"/users/me/change-password", ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
