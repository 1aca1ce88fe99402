package http

import (
	"net/http"

	"github.com/aussiebroadwan/trackr/internal/auth/service"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// RolesHandler serves role and permission management.
type RolesHandler struct {
	Roles *service.RolesService
}

// HandleList handles GET /api/v1/roles
//
//	@Summary	List roles
//	@Tags		Roles
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	authsdk.ListRolesResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	403	{object}	authsdk.ErrorResponse
//	@Router		/api/v1/roles [get].
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Roles.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toListRolesResponse(roles))
}

// HandleGet handles GET /api/v1/roles/{id}
//
//	@Summary	Get role
//	@Tags		Roles
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Role ID"
//	@Success	200	{object}	authsdk.RoleResponse
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Router		/api/v1/roles/{id} [get].
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	role, err := h.Roles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleCreate handles POST /api/v1/roles
//
//	@Summary	Create role
//	@Tags		Roles
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.RoleRequest	true	"Role name and permission names"
//	@Success	201		{object}	authsdk.RoleResponse
//	@Failure	400		{object}	authsdk.ErrorResponse	"unknown permission"
//	@Failure	409		{object}	authsdk.ErrorResponse	"name taken"
//	@Router		/api/v1/roles [post].
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RoleRequest
	if !decode(w, r, &req) {
		return
	}

	role, err := h.Roles.Create(r.Context(), service.RoleParams{Name: req.Name, Permissions: req.Permissions})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRoleResponse(role))
}

// HandleUpdate handles PUT /api/v1/roles/{id}
//
//	@Summary		Update role
//	@Description	Renames the role and replaces its permission set.
//	@Tags			Roles
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"Role ID"
//	@Param			request	body		authsdk.RoleRequest	true	"Role name and permission names"
//	@Success		200		{object}	authsdk.RoleResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Failure		409		{object}	authsdk.ErrorResponse
//	@Router			/api/v1/roles/{id} [put].
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RoleRequest
	if !decode(w, r, &req) {
		return
	}

	role, err := h.Roles.Update(r.Context(), r.PathValue("id"), service.RoleParams{Name: req.Name, Permissions: req.Permissions})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleDelete handles DELETE /api/v1/roles/{id}
//
//	@Summary		Delete role
//	@Description	Fails with 409 while any user still holds the role.
//	@Tags			Roles
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Role ID"
//	@Success		204
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Failure		409	{object}	authsdk.ErrorResponse	"deletion_conflict"
//	@Router			/api/v1/roles/{id} [delete].
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Roles.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListPermissions handles GET /api/v1/permissions
//
//	@Summary	List permissions
//	@Tags		Roles
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	authsdk.ListPermissionsResponse
//	@Router		/api/v1/permissions [get].
func (h *RolesHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Roles.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListPermissionsResponse{Permissions: toPermissionResponses(perms)})
}
