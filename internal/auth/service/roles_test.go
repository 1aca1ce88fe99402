package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestRolesService(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	e.bootstrap(t)

	perms, err := e.roles.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(domain.Resources)*len(domain.Actions))

	var editor domain.Role
	t.Run("create", func(t *testing.T) {
		editor, err = e.roles.Create(ctx, RoleParams{
			Name:        "Editor",
			Permissions: []string{"UPDATE_TICKET", "READ_TICKET", "READ_TICKET"},
		})
		require.NoError(t, err)
		_, err = idx.Parse(editor.ID)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"READ_TICKET", "UPDATE_TICKET"}, editor.PermissionNames())

		got, err := e.roles.Get(ctx, editor.ID)
		require.NoError(t, err)
		require.Equal(t, "Editor", got.Name)
		require.ElementsMatch(t, editor.PermissionNames(), got.PermissionNames())
	})

	t.Run("create rejects duplicates and unknown permissions", func(t *testing.T) {
		_, err := e.roles.Create(ctx, RoleParams{Name: "Editor"})
		requireKind(t, err, ErrAlreadyExists, "Role with name Editor already exists")

		_, err = e.roles.Create(ctx, RoleParams{Name: "Broken", Permissions: []string{"READ_TICKET", "FLY_PLANE"}})
		requireKind(t, err, ErrInvalidArgument, "Permission FLY_PLANE does not exist")
	})

	t.Run("update", func(t *testing.T) {
		got, err := e.roles.Update(ctx, editor.ID, RoleParams{Name: "Ticket Editor", Permissions: []string{"UPDATE_TICKET"}})
		require.NoError(t, err)
		require.Equal(t, "Ticket Editor", got.Name)
		require.Equal(t, []string{"UPDATE_TICKET"}, got.PermissionNames())

		_, err = e.roles.Update(ctx, editor.ID, RoleParams{Name: domain.SuperAdminRole})
		requireKind(t, err, ErrAlreadyExists, "Role with name Super Admin already exists")

		_, err = e.roles.Update(ctx, idx.New().String(), RoleParams{Name: "Ghost"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete refuses while assigned", func(t *testing.T) {
		alice := e.insertUser(t, "alice@example.com")
		_, err := e.accounts.ChangeRoles(ctx, alice.UUID, []string{"Ticket Editor"})
		require.NoError(t, err)

		err = e.roles.Delete(ctx, editor.ID)
		requireKind(t, err, ErrDeletionConflict, "Role Ticket Editor is assigned to 1 user(s) and cannot be deleted")

		_, err = e.accounts.ChangeRoles(ctx, alice.UUID, nil)
		require.NoError(t, err)
		require.NoError(t, e.roles.Delete(ctx, editor.ID))

		_, err = e.roles.Get(ctx, editor.ID)
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, e.roles.Delete(ctx, editor.ID), ErrNotFound)
	})

	roles, err := e.roles.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, domain.SuperAdminRole, roles[0].Name)
}
