package service

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/trackr/internal/auth/store"
)

// AuthorizationService answers "may subject act on a resource". The two
// predicates are always combined with OR.
type AuthorizationService struct {
	Store store.Store
}

// IsOwner reports whether the subject is the resource owner.
func (s *AuthorizationService) IsOwner(subjectUUID, ownerUUID string) bool {
	return subjectUUID != "" && subjectUUID == ownerUUID
}

// HasPermission reads the subject's permission union fresh on every call,
// so role edits apply to the next request.
func (s *AuthorizationService) HasPermission(ctx context.Context, subjectUUID, permission string) (bool, error) {
	names, err := s.Store.Accounts().PermissionNames(ctx, subjectUUID)
	if err != nil {
		return false, serverError(ctx, "failed to load permissions", err)
	}
	return slices.Contains(names, permission), nil
}

// Authorize is IsOwner OR HasPermission. An empty ownerUUID skips the
// ownership check; an empty permission skips the permission check.
func (s *AuthorizationService) Authorize(ctx context.Context, subjectUUID, ownerUUID, permission string) (bool, error) {
	if ownerUUID != "" && s.IsOwner(subjectUUID, ownerUUID) {
		return true, nil
	}
	if permission == "" {
		return false, nil
	}
	return s.HasPermission(ctx, subjectUUID, permission)
}

// Permissions returns the subject's effective permission names.
func (s *AuthorizationService) Permissions(ctx context.Context, subjectUUID string) ([]string, error) {
	names, err := s.Store.Accounts().PermissionNames(ctx, subjectUUID)
	if err != nil {
		return nil, serverError(ctx, "failed to load permissions", err)
	}
	return names, nil
}
