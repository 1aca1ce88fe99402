package http

import (
	"net/http"

	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// AuthHandler serves the public account endpoints.
type AuthHandler struct {
	Auth     *service.AuthenticationService
	Accounts *service.AccountService
}

// HandleRegister handles POST /api/v1/auth/register/open
//
//	@Summary		Register
//	@Description	Creates a disabled, unverified account and emails a verification link.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"New account"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"validation_error"
//	@Failure		409		{object}	authsdk.ErrorResponse	"username taken"
//	@Failure		429		{object}	authsdk.ErrorResponse
//	@Failure		500		{object}	authsdk.ErrorResponse
//	@Router			/api/v1/auth/register/open [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.Register(r.Context(), service.RegisterParams{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(acc))
}

// HandleLogin handles POST /api/v1/auth/login/access-token
//
//	@Summary		Log in
//	@Description	Exchanges username and password for a session token. Five consecutive failures lock the account for ten minutes.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid credentials, locked, disabled"
//	@Failure		429		{object}	authsdk.ErrorResponse
//	@Router			/api/v1/auth/login/access-token [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expiresIn := 0
	if res.Claims.ExpiresAt != nil && res.Claims.IssuedAt != nil {
		expiresIn = int(res.Claims.ExpiresAt.Sub(res.Claims.IssuedAt.Time).Seconds())
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		Token:            res.Token,
		TokenType:        "Bearer",
		ExpiresIn:        expiresIn,
		CredentialsStale: res.CredentialsStale,
	})
}

// HandleVerify handles POST /api/v1/auth/verify-account
//
//	@Summary		Verify account
//	@Description	Consumes a verification token and activates the account.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyAccountRequest	true	"Token from the email"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid or expired token"
//	@Router			/api/v1/auth/verify-account [post].
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyAccountRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.Verify(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleResendVerification handles POST /api/v1/auth/verify-account/resend/{username}
//
//	@Summary		Resend verification email
//	@Description	Always answers 202 so the response does not reveal whether the username exists.
//	@Tags			Auth
//	@Produce		json
//	@Param			username	path		string	true	"Username"
//	@Success		202			{object}	authsdk.MessageResponse
//	@Failure		429			{object}	authsdk.ErrorResponse
//	@Router			/api/v1/auth/verify-account/resend/{username} [post].
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.ResendVerification(r.Context(), r.PathValue("username")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{
		Message: "If the account exists and is not verified, a new link has been sent.",
	})
}

// HandlePasswordRecovery handles POST /api/v1/auth/password-recovery/{username}
//
//	@Summary		Request password reset
//	@Description	Always answers 202 so the response does not reveal whether the username exists.
//	@Tags			Auth
//	@Produce		json
//	@Param			username	path		string	true	"Username"
//	@Success		202			{object}	authsdk.MessageResponse
//	@Failure		429			{object}	authsdk.ErrorResponse
//	@Router			/api/v1/auth/password-recovery/{username} [post].
func (h *AuthHandler) HandlePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.RequestPasswordRecovery(r.Context(), r.PathValue("username")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{
		Message: "If the account exists, a password reset link has been sent.",
	})
}

// HandleResetPassword handles POST /api/v1/auth/reset-password
//
//	@Summary		Reset password
//	@Description	Sets a new password with a reset token. Existing sessions stop working.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.ResetPasswordRequest	true	"Token and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid or expired token"
//	@Router			/api/v1/auth/reset-password [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.Accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
