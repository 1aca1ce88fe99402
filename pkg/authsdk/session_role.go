package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListRoles requires READ_ROLE.
func (s *Session) ListRoles(ctx context.Context) (*ListRolesResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, apiPrefix+"/roles", nil)
	if err != nil {
		return nil, err
	}

	var rolesResp ListRolesResponse
	if err := decodeJSON(resp, &rolesResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &rolesResp, nil
}

// GetRole requires READ_ROLE.
func (s *Session) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, rolePath(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeRole(resp, http.StatusOK)
}

// CreateRole requires CREATE_ROLE.
func (s *Session) CreateRole(ctx context.Context, req RoleRequest) (*RoleResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, apiPrefix+"/roles", req)
	if err != nil {
		return nil, err
	}
	return decodeRole(resp, http.StatusCreated)
}

// UpdateRole requires UPDATE_ROLE.
func (s *Session) UpdateRole(ctx context.Context, id string, req RoleRequest) (*RoleResponse, error) {
	resp, err := s.do(ctx, http.MethodPut, rolePath(id), req)
	if err != nil {
		return nil, err
	}
	return decodeRole(resp, http.StatusOK)
}

// DeleteRole requires DELETE_ROLE and fails with 409 while the role is
// assigned.
func (s *Session) DeleteRole(ctx context.Context, id string) error {
	resp, err := s.do(ctx, http.MethodDelete, rolePath(id), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ListPermissions requires READ_ROLE.
func (s *Session) ListPermissions(ctx context.Context) (*ListPermissionsResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, apiPrefix+"/permissions", nil)
	if err != nil {
		return nil, err
	}

	var perms ListPermissionsResponse
	if err := decodeJSON(resp, &perms, http.StatusOK); err != nil {
		return nil, err
	}
	return &perms, nil
}

func rolePath(id string) string {
	return apiPrefix + "/roles/" + url.PathEscape(id)
}

func decodeRole(resp *http.Response, status int) (*RoleResponse, error) {
	var role RoleResponse
	if err := decodeJSON(resp, &role, status); err != nil {
		return nil, err
	}
	return &role, nil
}
