package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// UsersHandler serves account management. Route guards decide who may
// call each method; the handlers trust the principal they are given.
type UsersHandler struct {
	Accounts *service.AccountService
}

// HandleList handles GET /api/v1/users
//
//	@Summary		List users
//	@Description	Pages through accounts. Pages are zero-based. String filters match by case-insensitive prefix.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int		false	"Page number, from 0"
//	@Param			size		query		int		false	"Page size, 1 to 100"
//	@Param			uuid		query		string	false	"Exact account UUID"
//	@Param			username	query		string	false	"Username prefix"
//	@Param			lastname	query		string	false	"Last name prefix"
//	@Param			enabled		query		bool	false	"Enabled flag"
//	@Param			verified	query		bool	false	"Verified flag"
//	@Param			deleted		query		bool	false	"Deleted flag"
//	@Param			permission	query		[]string	false	"Holds any of these permissions"	collectionFormat(multi)
//	@Success		200			{object}	authsdk.ListUsersResponse
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Failure		403			{object}	authsdk.ErrorResponse
//	@Router			/api/v1/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	f, apiErr := parseAccountFilter(r)
	if apiErr != nil {
		apiErr.WriteError(w)
		return
	}

	page, err := h.Accounts.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.ListUsersResponse{
		Users: make([]authsdk.UserResponse, len(page.Accounts)),
		Total: page.Total,
		Page:  page.Page,
		Size:  page.Size,
	}
	for i, a := range page.Accounts {
		resp.Users[i] = toUserResponse(a)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func parseAccountFilter(r *http.Request) (store.AccountFilter, *authsdk.APIError) {
	q := r.URL.Query()
	f := store.AccountFilter{
		UUID:           q.Get("uuid"),
		UsernamePrefix: q.Get("username"),
		LastNamePrefix: q.Get("lastname"),
		Permissions:    q["permission"],
		Size:           defaultPageSize,
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "page must be a non-negative integer")
		}
		f.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return f, authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "size must be between 1 and 100")
		}
		f.Size = n
	}

	for name, dst := range map[string]**bool{
		"enabled":  &f.Enabled,
		"verified": &f.Verified,
		"deleted":  &f.Deleted,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, name+" must be true or false")
		}
		*dst = &b
	}
	return f, nil
}

// HandleCreate handles POST /api/v1/users
//
//	@Summary		Create user
//	@Description	Creates an enabled, verified account without the email round trip.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.RegisterRequest	true	"New account"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse
//	@Router			/api/v1/users [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.InsertVerified(r.Context(), service.RegisterParams{
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

// HandleMe handles GET /api/v1/users/me
//
//	@Summary	Current user
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	authsdk.UserResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Accounts.Get(r.Context(), principal(r).AccountUUID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleUpdateMe handles PUT /api/v1/users/me
//
//	@Summary	Update current user
//	@Tags		Users
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.UpdateMeRequest	true	"Names to change"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/me [put].
func (h *UsersHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateMeRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.Update(r.Context(), principal(r).AccountUUID, service.UpdateParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleChangePassword handles PATCH /api/v1/users/me/change-password
//
//	@Summary		Change own password
//	@Description	Requires the current password. Existing sessions stop working.
//	@Tags			Users
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Old and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Router			/api/v1/users/me/change-password [patch].
func (h *UsersHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), principal(r).AccountUUID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /api/v1/users/{uuid}
//
//	@Summary	Get user
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		uuid	path		string	true	"Account UUID"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	403		{object}	authsdk.ErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/{uuid} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Accounts.Get(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleUpdate handles PUT /api/v1/users/{uuid}
//
//	@Summary	Update user
//	@Tags		Users
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		uuid	path		string						true	"Account UUID"
//	@Param		request	body		authsdk.UpdateUserRequest	true	"Fields to change"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Failure	409		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/{uuid} [put].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.Update(r.Context(), r.PathValue("uuid"), service.UpdateParams{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleUpdateStatus handles PATCH /api/v1/users/{uuid}
//
//	@Summary	Change user flags
//	@Tags		Users
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		uuid	path		string							true	"Account UUID"
//	@Param		request	body		authsdk.UpdateUserStatusRequest	true	"Flags to change"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/{uuid} [patch].
func (h *UsersHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateUserStatusRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.Accounts.UpdateStatus(r.Context(), r.PathValue("uuid"), service.StatusParams{
		Enabled:  req.Enabled,
		Verified: req.Verified,
		Deleted:  req.Deleted,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleDelete handles DELETE /api/v1/users/{uuid}
//
//	@Summary		Delete user
//	@Description	Soft-deletes the account. The record stays but can no longer log in.
//	@Tags			Users
//	@Security		BearerAuth
//	@Param			uuid	path	string	true	"Account UUID"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Router			/api/v1/users/{uuid} [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.SoftDelete(r.Context(), r.PathValue("uuid")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePurge handles DELETE /api/v1/users/{uuid}/permanent
//
//	@Summary		Permanently delete user
//	@Description	Removes the account with its tokens and role assignments. This cannot be undone.
//	@Tags			Users
//	@Security		BearerAuth
//	@Param			uuid	path	string	true	"Account UUID"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Router			/api/v1/users/{uuid}/permanent [delete].
func (h *UsersHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Delete(r.Context(), r.PathValue("uuid")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock handles POST /api/v1/users/{uuid}/unlock
//
//	@Summary	Unlock user
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		uuid	path		string	true	"Account UUID"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/{uuid}/unlock [post].
func (h *UsersHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Accounts.Unlock(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(acc))
}

// HandleRoles handles GET /api/v1/users/{uuid}/roles
//
//	@Summary	List user roles
//	@Tags		Users
//	@Produce	json
//	@Security	BearerAuth
//	@Param		uuid	path		string	true	"Account UUID"
//	@Success	200		{object}	authsdk.ListRolesResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Router		/api/v1/users/{uuid}/roles [get].
func (h *UsersHandler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Accounts.Roles(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toListRolesResponse(roles))
}

// HandleChangeRoles handles PATCH /api/v1/users/{uuid}/roles
//
//	@Summary		Replace user roles
//	@Description	The user ends up holding exactly the named roles.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			uuid	path		string						true	"Account UUID"
//	@Param			request	body		authsdk.ChangeRolesRequest	true	"Role names"
//	@Success		200		{object}	authsdk.ListRolesResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse	"user or role not found"
//	@Router			/api/v1/users/{uuid}/roles [patch].
func (h *UsersHandler) HandleChangeRoles(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangeRolesRequest
	if !decode(w, r, &req) {
		return
	}

	roles, err := h.Accounts.ChangeRoles(r.Context(), r.PathValue("uuid"), req.RoleNames)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toListRolesResponse(roles))
}
