package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// User administration. Each call needs the permission noted, unless the
// caller is the user in question where ownership is accepted.

// ListUsers requires READ_USER.
func (s *Session) ListUsers(ctx context.Context, q ListUsersQuery) (*ListUsersResponse, error) {
	path := apiPrefix + "/users"
	if v := q.Values(); len(v) > 0 {
		path += "?" + v.Encode()
	}

	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var list ListUsersResponse
	if err := decodeJSON(resp, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateUser inserts a verified account. Requires CREATE_USER.
func (s *Session) CreateUser(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, apiPrefix+"/users", req)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp, http.StatusCreated)
}

// GetUser requires ownership or READ_USER.
func (s *Session) GetUser(ctx context.Context, uuid string) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, userPath(uuid), nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp, http.StatusOK)
}

// UpdateUser requires UPDATE_USER.
func (s *Session) UpdateUser(ctx context.Context, uuid string, req UpdateUserRequest) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPut, userPath(uuid), req)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp, http.StatusOK)
}

// UpdateUserStatus requires UPDATE_USER.
func (s *Session) UpdateUserStatus(ctx context.Context, uuid string, req UpdateUserStatusRequest) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPatch, userPath(uuid), req)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp, http.StatusOK)
}

// DeleteUser soft-deletes. Requires DELETE_USER.
func (s *Session) DeleteUser(ctx context.Context, uuid string) error {
	resp, err := s.do(ctx, http.MethodDelete, userPath(uuid), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// PurgeUser removes the account permanently. Requires DELETE_USER.
func (s *Session) PurgeUser(ctx context.Context, uuid string) error {
	resp, err := s.do(ctx, http.MethodDelete, userPath(uuid)+"/permanent", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// UnlockUser lifts a lockout early. Requires UPDATE_USER.
func (s *Session) UnlockUser(ctx context.Context, uuid string) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, userPath(uuid)+"/unlock", nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(resp, http.StatusOK)
}

// UserRoles requires ownership or READ_USER.
func (s *Session) UserRoles(ctx context.Context, uuid string) (*ListRolesResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, userPath(uuid)+"/roles", nil)
	if err != nil {
		return nil, err
	}

	var roles ListRolesResponse
	if err := decodeJSON(resp, &roles, http.StatusOK); err != nil {
		return nil, err
	}
	return &roles, nil
}

// ChangeUserRoles replaces the user's roles. Requires UPDATE_ROLE.
func (s *Session) ChangeUserRoles(ctx context.Context, uuid string, roleNames ...string) (*ListRolesResponse, error) {
	resp, err := s.do(ctx, http.MethodPatch, userPath(uuid)+"/roles", ChangeRolesRequest{RoleNames: roleNames})
	if err != nil {
		return nil, err
	}

	var roles ListRolesResponse
	if err := decodeJSON(resp, &roles, http.StatusOK); err != nil {
		return nil, err
	}
	return &roles, nil
}

func userPath(uuid string) string {
	return apiPrefix + "/users/" + url.PathEscape(uuid)
}

func decodeUser(resp *http.Response, status int) (*UserResponse, error) {
	var user UserResponse
	if err := decodeJSON(resp, &user, status); err != nil {
		return nil, err
	}
	return &user, nil
}
