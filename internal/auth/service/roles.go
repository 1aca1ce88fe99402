package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/idx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

type RolesService struct {
	Store store.Store
	Clock clockwork.Clock
}

// RoleParams names a role and the permissions it grants.
type RoleParams struct {
	Name        string
	Permissions []string
}

func (s *RolesService) ListAll(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListAll(ctx)
	if err != nil {
		return nil, serverError(ctx, "failed to list roles", err)
	}
	return roles, nil
}

func (s *RolesService) Get(ctx context.Context, id string) (domain.Role, error) {
	r, err := s.Store.Roles().GetRoleByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Role{}, notFound("Role", "Role with id %s not found", id)
		}
		return domain.Role{}, serverError(ctx, "failed to load role", err)
	}
	return r, nil
}

func (s *RolesService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.Store.Permissions().ListAll(ctx)
	if err != nil {
		return nil, serverError(ctx, "failed to list permissions", err)
	}
	return perms, nil
}

// resolvePermissions maps names to stored permissions, rejecting the whole
// set if any name is unknown.
func resolvePermissions(ctx context.Context, tx store.Tx, names []string) ([]domain.Permission, error) {
	names = slices.Compact(slices.Sorted(slices.Values(names)))
	if len(names) == 0 {
		return nil, nil
	}

	perms, err := tx.Permissions().GetByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(names) {
		found := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			found[p.Name] = struct{}{}
		}
		for _, n := range names {
			if _, ok := found[n]; !ok {
				return nil, invalidArgument("Permission", "Permission %s does not exist", n)
			}
		}
	}
	return perms, nil
}

func (s *RolesService) Create(ctx context.Context, p RoleParams) (domain.Role, error) {
	now := clockOrReal(s.Clock).Now().UTC()
	r := domain.Role{
		ID:        idx.NewAt(now).String(),
		Name:      p.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Roles().GetRoleByName(ctx, p.Name); err == nil {
			return alreadyExists("Role", "Role with name %s already exists", p.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		perms, err := resolvePermissions(ctx, tx, p.Permissions)
		if err != nil {
			return err
		}
		r.Permissions = perms

		if err := tx.Roles().CreateRole(ctx, r); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return alreadyExists("Role", "Role with name %s already exists", p.Name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Role{}, passthrough(ctx, "failed to create role", err)
	}

	slogx.FromContext(ctx).Info("role created", slog.String("role_id", r.ID), slog.String("name", r.Name))
	return r, nil
}

// Update renames the role and replaces its permissions.
func (s *RolesService) Update(ctx context.Context, id string, p RoleParams) (domain.Role, error) {
	var r domain.Role
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.Roles().GetRoleByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Role", "Role with id %s not found", id)
			}
			return err
		}

		if other, err := tx.Roles().GetRoleByName(ctx, p.Name); err == nil && other.ID != id {
			return alreadyExists("Role", "Role with name %s already exists", p.Name)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		perms, err := resolvePermissions(ctx, tx, p.Permissions)
		if err != nil {
			return err
		}

		current.Name = p.Name
		current.Permissions = perms
		current.UpdatedAt = clockOrReal(s.Clock).Now().UTC()
		if err := tx.Roles().UpdateRole(ctx, current); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return alreadyExists("Role", "Role with name %s already exists", p.Name)
			}
			return err
		}
		r = current
		return nil
	})
	if err != nil {
		return domain.Role{}, passthrough(ctx, "failed to update role", err)
	}
	return r, nil
}

// Delete refuses while any account still holds the role.
func (s *RolesService) Delete(ctx context.Context, id string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		r, err := tx.Roles().GetRoleByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Role", "Role with id %s not found", id)
			}
			return err
		}

		n, err := tx.Roles().CountAssignments(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return newError(ErrDeletionConflict, "Role",
				"Role %s is assigned to %d user(s) and cannot be deleted", r.Name, n)
		}

		if err := tx.Roles().DeleteRole(ctx, id); err != nil {
			if errors.Is(err, store.ErrReferenced) {
				return newError(ErrDeletionConflict, "Role", "Role %s is still assigned and cannot be deleted", r.Name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return passthrough(ctx, "failed to delete role", err)
	}
	return nil
}
