// Package storetest is a conformance suite run against every store driver.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Epoch is truncated to microseconds so every driver round-trips it exactly.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises s, which must be migrated and empty.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("optimistic save", func(t *testing.T) { testSave(t, newStore(t)) })
	t.Run("token slots", func(t *testing.T) { testTokenSlots(t, newStore(t)) })
	t.Run("stale tokens", func(t *testing.T) { testStaleTokens(t, newStore(t)) })
	t.Run("list", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTx(t, newStore(t)) })
}

// NewAccount creates and stores a verified account.
func NewAccount(t *testing.T, s store.Store, username string) domain.Account {
	t.Helper()
	a := domain.NewVerifiedAccount(username, "First", "Last", "hash", Epoch)
	require.NoError(t, s.Accounts().Create(context.Background(), *a))
	a.Version = 1
	return *a
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	alice := NewAccount(t, s, "alice@example.com")

	got, err := s.Accounts().GetByUUID(ctx, alice.UUID)
	require.NoError(t, err)
	require.Equal(t, alice.Username, got.Username)
	require.Equal(t, int64(1), got.Version)
	require.True(t, got.Enabled)
	require.True(t, got.Verified)
	require.False(t, got.Locked)
	require.Nil(t, got.LockedAt)
	require.True(t, Epoch.Equal(got.PasswordChangedAt))

	got, err = s.Accounts().GetByUsername(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, alice.UUID, got.UUID)

	_, err = s.Accounts().GetByUsername(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := domain.NewAccount("alice@example.com", "Other", "Person", "hash", Epoch)
	require.ErrorIs(t, s.Accounts().Create(ctx, *dup), store.ErrAlreadyExists)

	empty, err = s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	require.NoError(t, s.Accounts().Delete(ctx, alice.UUID))
	require.ErrorIs(t, s.Accounts().Delete(ctx, alice.UUID), store.ErrNotFound)
	_, err = s.Accounts().GetByUUID(ctx, alice.UUID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Only unverified accounts are removed conditionally.
	verified := NewAccount(t, s, "verified@example.com")
	require.ErrorIs(t, s.Accounts().DeleteUnverified(ctx, verified.UUID), store.ErrNotFound)
	_, err = s.Accounts().GetByUUID(ctx, verified.UUID)
	require.NoError(t, err)

	pending := domain.NewAccount("pending@example.com", "P", "Q", "hash", Epoch)
	require.NoError(t, s.Accounts().Create(ctx, *pending))
	require.NoError(t, s.Accounts().DeleteUnverified(ctx, pending.UUID))
	_, err = s.Accounts().GetByUUID(ctx, pending.UUID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testSave(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewAccount(t, s, "bob@example.com")

	stale := a

	a.RecordFailedLogin(Epoch)
	a.Lock(Epoch.Add(time.Minute))
	a.UpdatedAt = Epoch.Add(time.Minute)
	v, err := s.Accounts().Save(ctx, a)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	got, err := s.Accounts().GetByUUID(ctx, a.UUID)
	require.NoError(t, err)
	require.Equal(t, 1, got.FailedLogins)
	require.True(t, got.Locked)
	require.NotNil(t, got.LockedAt)
	require.True(t, Epoch.Add(time.Minute).Equal(*got.LockedAt))
	require.Equal(t, int64(2), got.Version)

	stale.RecordFailedLogin(Epoch)
	_, err = s.Accounts().Save(ctx, stale)
	require.ErrorIs(t, err, store.ErrConflict)

	ghost := domain.NewAccount("ghost@example.com", "G", "H", "hash", Epoch)
	_, err = s.Accounts().Save(ctx, *ghost)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTokenSlots(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewAccount(t, s, "carol@example.com")

	a.SetSlot(domain.NewToken(domain.TokenVerification, "verify-1", a.UUID, time.Hour, Epoch))
	a.SetSlot(domain.NewToken(domain.TokenPasswordReset, "reset-1", a.UUID, time.Minute, Epoch))
	v, err := s.Accounts().Save(ctx, a)
	require.NoError(t, err)
	a.Version = v

	got, err := s.Accounts().GetByToken(ctx, domain.TokenVerification, "verify-1")
	require.NoError(t, err)
	require.Equal(t, a.UUID, got.UUID)
	require.NotNil(t, got.VerificationToken)
	require.Equal(t, "verify-1", got.VerificationToken.Value)
	require.True(t, Epoch.Add(time.Hour).Equal(got.VerificationToken.ExpiresAt))
	require.NotNil(t, got.ResetToken)
	require.Equal(t, "reset-1", got.ResetToken.Value)

	// Token values are scoped by kind.
	_, err = s.Accounts().GetByToken(ctx, domain.TokenPasswordReset, "verify-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Replacing the slot discards the old value.
	got.SetSlot(domain.NewToken(domain.TokenVerification, "verify-2", a.UUID, time.Hour, Epoch))
	got.ClearSlot(domain.TokenPasswordReset)
	v, err = s.Accounts().Save(ctx, got)
	require.NoError(t, err)

	_, err = s.Accounts().GetByToken(ctx, domain.TokenVerification, "verify-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Accounts().GetByToken(ctx, domain.TokenPasswordReset, "reset-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.Accounts().GetByUUID(ctx, a.UUID)
	require.NoError(t, err)
	require.Equal(t, v, got.Version)
	require.Equal(t, "verify-2", got.VerificationToken.Value)
	require.Nil(t, got.ResetToken)

	// A token value cannot be shared by two accounts.
	other := NewAccount(t, s, "dave@example.com")
	other.SetSlot(domain.NewToken(domain.TokenVerification, "verify-2", other.UUID, time.Hour, Epoch))
	_, err = s.Accounts().Save(ctx, other)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	// Tokens go with the account.
	require.NoError(t, s.Accounts().Delete(ctx, a.UUID))
	_, err = s.Accounts().GetByToken(ctx, domain.TokenVerification, "verify-2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testStaleTokens(t *testing.T, s store.Store) {
	ctx := context.Background()

	old := NewAccount(t, s, "old@example.com")
	old.SetSlot(domain.NewToken(domain.TokenVerification, "old", old.UUID, time.Hour, Epoch))
	_, err := s.Accounts().Save(ctx, old)
	require.NoError(t, err)

	fresh := NewAccount(t, s, "fresh@example.com")
	fresh.SetSlot(domain.NewToken(domain.TokenVerification, "fresh", fresh.UUID, time.Hour, Epoch.Add(2*time.Hour)))
	_, err = s.Accounts().Save(ctx, fresh)
	require.NoError(t, err)

	resetOnly := NewAccount(t, s, "reset@example.com")
	resetOnly.SetSlot(domain.NewToken(domain.TokenPasswordReset, "reset", resetOnly.UUID, time.Hour, Epoch))
	_, err = s.Accounts().Save(ctx, resetOnly)
	require.NoError(t, err)

	stale, err := s.Accounts().ListStaleTokens(ctx, domain.TokenVerification, Epoch.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, old.UUID, stale[0].UUID)
	require.NotNil(t, stale[0].VerificationToken)
	require.Equal(t, "old", stale[0].VerificationToken.Value)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()

	perm := domain.NewPermission(idx.New().String(), "USER", "READ")
	require.NoError(t, s.Permissions().CreatePermission(ctx, perm))
	role := domain.Role{ID: idx.New().String(), Name: "viewer", Permissions: []domain.Permission{perm}, CreatedAt: Epoch, UpdatedAt: Epoch}
	require.NoError(t, s.Roles().CreateRole(ctx, role))

	for _, name := range []string{"anna@example.com", "andy@example.com", "beth@example.com"} {
		NewAccount(t, s, name)
	}
	pending := domain.NewAccount("amy@example.com", "Amy", "Pending", "hash", Epoch)
	require.NoError(t, s.Accounts().Create(ctx, *pending))
	require.NoError(t, s.Accounts().SetRoles(ctx, pending.UUID, []string{role.ID}))

	all, total, err := s.Accounts().List(ctx, store.AccountFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, "amy@example.com", all[0].Username)

	page, total, err := s.Accounts().List(ctx, store.AccountFilter{UsernamePrefix: "an", Size: 1, Page: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
	require.Equal(t, "anna@example.com", page[0].Username)

	no := false
	unverified, total, err := s.Accounts().List(ctx, store.AccountFilter{Verified: &no})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, pending.UUID, unverified[0].UUID)

	readers, _, err := s.Accounts().List(ctx, store.AccountFilter{Permissions: []string{"READ_USER", "DELETE_USER"}})
	require.NoError(t, err)
	require.Len(t, readers, 1)
	require.Equal(t, pending.UUID, readers[0].UUID)

	byLast, _, err := s.Accounts().List(ctx, store.AccountFilter{LastNamePrefix: "pend"})
	require.NoError(t, err)
	require.Len(t, byLast, 1)
}

func testRoles(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.Permissions().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	perms := map[string]domain.Permission{}
	for _, p := range []domain.Permission{
		domain.NewPermission(idx.New().String(), "USER", "READ"),
		domain.NewPermission(idx.New().String(), "USER", "DELETE"),
		domain.NewPermission(idx.New().String(), "ROLE", "READ"),
	} {
		require.NoError(t, s.Permissions().CreatePermission(ctx, p))
		perms[p.Name] = p
	}
	require.ErrorIs(t, s.Permissions().CreatePermission(ctx, domain.NewPermission(idx.New().String(), "USER", "READ")), store.ErrAlreadyExists)

	found, err := s.Permissions().GetByNames(ctx, []string{"READ_USER", "READ_ROLE", "NOPE"})
	require.NoError(t, err)
	require.Len(t, found, 2)

	listed, err := s.Permissions().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	viewer := domain.Role{ID: idx.New().String(), Name: "viewer", CreatedAt: Epoch, UpdatedAt: Epoch,
		Permissions: []domain.Permission{perms["READ_USER"], perms["READ_ROLE"]}}
	moderator := domain.Role{ID: idx.New().String(), Name: "moderator", CreatedAt: Epoch, UpdatedAt: Epoch,
		Permissions: []domain.Permission{perms["READ_USER"], perms["DELETE_USER"]}}
	require.NoError(t, s.Roles().CreateRole(ctx, viewer))
	require.NoError(t, s.Roles().CreateRole(ctx, moderator))
	require.ErrorIs(t, s.Roles().CreateRole(ctx, domain.Role{ID: idx.New().String(), Name: "viewer", CreatedAt: Epoch, UpdatedAt: Epoch}), store.ErrAlreadyExists)

	got, err := s.Roles().GetRoleByName(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, viewer.ID, got.ID)
	require.ElementsMatch(t, []string{"READ_USER", "READ_ROLE"}, got.PermissionNames())

	all, err := s.Roles().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "moderator", all[0].Name)

	a := NewAccount(t, s, "erin@example.com")
	require.NoError(t, s.Accounts().SetRoles(ctx, a.UUID, []string{viewer.ID, moderator.ID}))

	names, err := s.Accounts().PermissionNames(ctx, a.UUID)
	require.NoError(t, err)
	require.Equal(t, []string{"DELETE_USER", "READ_ROLE", "READ_USER"}, names)

	roles, err := s.Accounts().Roles(ctx, a.UUID)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	// Edits show up on the next read.
	viewer.Permissions = []domain.Permission{perms["READ_USER"]}
	viewer.Name = "reader"
	viewer.UpdatedAt = Epoch.Add(time.Hour)
	require.NoError(t, s.Roles().UpdateRole(ctx, viewer))
	require.NoError(t, s.Accounts().SetRoles(ctx, a.UUID, []string{viewer.ID}))

	names, err = s.Accounts().PermissionNames(ctx, a.UUID)
	require.NoError(t, err)
	require.Equal(t, []string{"READ_USER"}, names)

	n, err := s.Roles().CountAssignments(ctx, viewer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.ErrorIs(t, s.Roles().DeleteRole(ctx, viewer.ID), store.ErrReferenced)

	require.NoError(t, s.Accounts().SetRoles(ctx, a.UUID, nil))
	require.NoError(t, s.Roles().DeleteRole(ctx, viewer.ID))
	require.ErrorIs(t, s.Roles().DeleteRole(ctx, viewer.ID), store.ErrNotFound)

	_, err = s.Roles().GetRoleByID(ctx, viewer.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.Roles().UpdateRole(ctx, viewer), store.ErrNotFound)
}

func testTx(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	var created domain.Account
	err := s.WithTx(ctx, func(tx store.Tx) error {
		created = NewAccount(t, tx, "frank@example.com")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Accounts().GetByUUID(ctx, created.UUID)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		created = NewAccount(t, tx, "frank@example.com")
		return nil
	})
	require.NoError(t, err)

	_, err = s.Accounts().GetByUUID(ctx, created.UUID)
	require.NoError(t, err)

	tx, err := s.Tx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	require.Error(t, tx.WithTx(ctx, func(store.Tx) error { return nil }))
}
