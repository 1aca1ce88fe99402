package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Register creates an unverified account. The service mails a
// verification link to the username.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/auth/register/open", "", req)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a Session.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/auth/login/access-token", "", LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var login LoginResponse
	if err := decodeJSON(resp, &login, http.StatusOK); err != nil {
		return nil, err
	}

	return &Session{
		client:           c,
		token:            login.Token,
		expiresAt:        time.Now().Add(time.Duration(login.ExpiresIn) * time.Second),
		credentialsStale: login.CredentialsStale,
	}, nil
}

// VerifyAccount completes registration with the emailed token.
func (c *Client) VerifyAccount(ctx context.Context, token string) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/auth/verify-account", "", VerifyAccountRequest{Token: token})
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResendVerification asks for the verification email again. It succeeds
// whether or not the username exists.
func (c *Client) ResendVerification(ctx context.Context, username string) error {
	return c.accepted(ctx, apiPrefix+"/auth/verify-account/resend/"+url.PathEscape(username))
}

// RequestPasswordRecovery asks for a password reset email. It succeeds
// whether or not the username exists.
func (c *Client) RequestPasswordRecovery(ctx context.Context, username string) error {
	return c.accepted(ctx, apiPrefix+"/auth/password-recovery/"+url.PathEscape(username))
}

// ResetPassword sets a new password with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/auth/reset-password", "", ResetPasswordRequest{
		Token:       token,
		NewPassword: newPassword,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (c *Client) accepted(ctx context.Context, path string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, "", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusAccepted)
}
