package domain

import (
	"strings"
	"time"
)

type Role struct {
	ID          string
	Name        string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PermissionNames flattens the role's permissions to their canonical names.
func (r Role) PermissionNames() []string {
	names := make([]string, len(r.Permissions))
	for i, p := range r.Permissions {
		names[i] = p.Name
	}
	return names
}

// Permission is an (action, resource) capability.
type Permission struct {
	ID       string
	Resource string
	Action   string
	Name     string
}

// PermissionName is the canonical ACTION_RESOURCE form.
func PermissionName(action, resource string) string {
	return strings.ToUpper(action) + "_" + strings.ToUpper(resource)
}

// NewPermission derives the name from action and resource.
func NewPermission(id, resource, action string) Permission {
	return Permission{
		ID:       id,
		Resource: strings.ToUpper(resource),
		Action:   strings.ToUpper(action),
		Name:     PermissionName(action, resource),
	}
}

// EffectivePermissions is the set union of permission names across roles.
func EffectivePermissions(roles []Role) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range r.Permissions {
			set[p.Name] = struct{}{}
		}
	}
	return set
}
