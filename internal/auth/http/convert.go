package http

import (
	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/authsdk"
)

func toUserResponse(a domain.Account) authsdk.UserResponse {
	return authsdk.UserResponse{
		UUID:              a.UUID,
		Username:          a.Username,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		Enabled:           a.Enabled,
		Verified:          a.Verified,
		Deleted:           a.Deleted,
		Locked:            a.Locked,
		FailedLogins:      a.FailedLogins,
		PasswordChangedAt: a.PasswordChangedAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toPermissionResponses(perms []domain.Permission) []authsdk.PermissionResponse {
	out := make([]authsdk.PermissionResponse, len(perms))
	for i, p := range perms {
		out[i] = authsdk.PermissionResponse{
			ID:       p.ID,
			Name:     p.Name,
			Resource: p.Resource,
			Action:   p.Action,
		}
	}
	return out
}

func toRoleResponse(r domain.Role) authsdk.RoleResponse {
	return authsdk.RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Permissions: toPermissionResponses(r.Permissions),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toListRolesResponse(roles []domain.Role) authsdk.ListRolesResponse {
	out := authsdk.ListRolesResponse{Roles: make([]authsdk.RoleResponse, len(roles))}
	for i, r := range roles {
		out.Roles[i] = toRoleResponse(r)
	}
	return out
}
