package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, e *testEnv, username string) domain.Account {
	t.Helper()
	a, err := e.accounts.Register(context.Background(), RegisterParams{
		Username:  username,
		Password:  testPassword,
		FirstName: "New",
		LastName:  "User",
	})
	require.NoError(t, err)
	return a
}

func TestRegister(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()

	a := register(t, e, "carol@example.com")
	require.False(t, a.Enabled)
	require.False(t, a.Verified)

	sent := e.notifier.lastVerification(t)
	stored := e.reload(t, a.UUID)
	require.NotNil(t, stored.VerificationToken)
	require.Equal(t, sent.Value, stored.VerificationToken.Value)
	require.Equal(t, "plain$"+testPassword, stored.PasswordHash)

	_, err := e.auth.Authenticate(ctx, "carol@example.com", testPassword)
	requireKind(t, err, ErrNotAuthorized, "Account is disabled or not verified")

	_, err = e.accounts.Register(ctx, RegisterParams{Username: "carol@example.com", Password: testPassword})
	requireKind(t, err, ErrAlreadyExists, "User with username carol@example.com already exists")
}

func TestRegister_SendFailureRemovesAccount(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	e.notifier.err = errSendFailed

	_, err := e.accounts.Register(ctx, RegisterParams{Username: "dave@example.com", Password: testPassword})
	require.ErrorIs(t, err, ErrServer)
	require.Empty(t, Message(err))

	_, err = e.store.Accounts().GetByUsername(ctx, "dave@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestVerify(t *testing.T) {
	t.Parallel()
	const invalid = "The verification link is invalid or has expired. Please register again."

	t.Run("activates the account", func(t *testing.T) {
		e := newTestEnv(t)
		ctx := context.Background()
		a := register(t, e, "carol@example.com")
		tok := e.notifier.lastVerification(t)

		got, err := e.accounts.Verify(ctx, tok.Value)
		require.NoError(t, err)
		require.True(t, got.Verified)
		require.True(t, got.Enabled)
		require.Nil(t, got.VerificationToken)

		e.clock.Advance(time.Second)
		_, err = e.auth.Authenticate(ctx, "carol@example.com", testPassword)
		require.NoError(t, err)

		_, err = e.accounts.Verify(ctx, tok.Value)
		requireKind(t, err, ErrNotAuthorized, invalid)
		require.Nil(t, e.reload(t, a.UUID).VerificationToken)
	})

	t.Run("expired token", func(t *testing.T) {
		e := newTestEnv(t)
		a := register(t, e, "carol@example.com")
		tok := e.notifier.lastVerification(t)

		e.clock.Advance(domain.DefaultVerificationTTL)
		_, err := e.accounts.Verify(context.Background(), tok.Value)
		requireKind(t, err, ErrNotAuthorized, invalid)
		require.False(t, e.reload(t, a.UUID).Verified)
	})

	t.Run("unknown token", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.accounts.Verify(context.Background(), "nope")
		requireKind(t, err, ErrNotAuthorized, invalid)
	})
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	register(t, e, "carol@example.com")
	first := e.notifier.lastVerification(t)

	require.NoError(t, e.accounts.ResendVerification(ctx, "carol@example.com"))
	require.Equal(t, first.Value, e.notifier.lastVerification(t).Value)

	e.clock.Advance(domain.DefaultVerificationTTL)
	require.NoError(t, e.accounts.ResendVerification(ctx, "carol@example.com"))
	require.NotEqual(t, first.Value, e.notifier.lastVerification(t).Value)

	sent := len(e.notifier.verify)
	require.NoError(t, e.accounts.ResendVerification(ctx, "ghost@example.com"))
	e.insertUser(t, "alice@example.com")
	require.NoError(t, e.accounts.ResendVerification(ctx, "alice@example.com"))
	require.Len(t, e.notifier.verify, sent)
}

func TestPasswordRecovery(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")

	session, err := e.auth.Authenticate(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, e.accounts.RequestPasswordRecovery(ctx, "ghost@example.com"))
	require.Empty(t, e.notifier.reset)

	require.NoError(t, e.accounts.RequestPasswordRecovery(ctx, "alice@example.com"))
	require.NoError(t, e.accounts.RequestPasswordRecovery(ctx, "alice@example.com"))
	require.Len(t, e.notifier.reset, 2)
	require.Equal(t, e.notifier.reset[0].Token.Value, e.notifier.reset[1].Token.Value)
	require.Equal(t, "alice@example.com", e.notifier.reset[0].To)
	tok := e.notifier.lastReset(t)

	e.clock.Advance(time.Second)
	require.NoError(t, e.accounts.ResetPassword(ctx, tok.Value, "N3w-password!"))
	require.Nil(t, e.reload(t, alice.UUID).ResetToken)

	_, err = e.auth.ResolveSession(ctx, session.Token)
	require.ErrorIs(t, err, ErrNotAuthorized)

	e.clock.Advance(time.Second)
	_, err = e.auth.Authenticate(ctx, "alice@example.com", "N3w-password!")
	require.NoError(t, err)

	err = e.accounts.ResetPassword(ctx, tok.Value, "An0ther-one!")
	requireKind(t, err, ErrNotAuthorized, "The password reset link is invalid or has expired.")
}

func TestPasswordRecovery_Throttled(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	e.insertUser(t, "alice@example.com")
	e.accounts.Throttle = NewMemoryThrottle(1, time.Hour, e.clock)

	require.NoError(t, e.accounts.RequestPasswordRecovery(ctx, "alice@example.com"))
	err := e.accounts.RequestPasswordRecovery(ctx, "ALICE@example.com")
	require.ErrorIs(t, err, ErrTooManyRequests)
	require.Len(t, e.notifier.reset, 1)

	e.clock.Advance(time.Hour)
	require.NoError(t, e.accounts.RequestPasswordRecovery(ctx, "alice@example.com"))
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")

	err := e.accounts.ChangePassword(ctx, alice.UUID, "wrong", "N3w-password!")
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Zero(t, e.reload(t, alice.UUID).FailedLogins)

	require.NoError(t, e.accounts.ChangePassword(ctx, alice.UUID, testPassword, "N3w-password!"))
	got := e.reload(t, alice.UUID)
	require.Equal(t, "plain$N3w-password!", got.PasswordHash)
	require.True(t, got.PasswordChangedAt.Equal(e.clock.Now()))
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")
	e.insertUser(t, "bob@example.com")

	first := "Alicia"
	got, err := e.accounts.Update(ctx, alice.UUID, UpdateParams{FirstName: &first})
	require.NoError(t, err)
	require.Equal(t, "Alicia", got.FirstName)
	require.Equal(t, "User", got.LastName)
	require.Equal(t, alice.Version+1, got.Version)

	taken := "bob@example.com"
	_, err = e.accounts.Update(ctx, alice.UUID, UpdateParams{Username: &taken})
	requireKind(t, err, ErrAlreadyExists, "User with username bob@example.com already exists")

	same := "alice@example.com"
	_, err = e.accounts.Update(ctx, alice.UUID, UpdateParams{Username: &same})
	require.NoError(t, err)

	_, err = e.accounts.Update(ctx, "missing", UpdateParams{FirstName: &first})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")

	yes, no := true, false
	got, err := e.accounts.UpdateStatus(ctx, alice.UUID, StatusParams{Enabled: &yes, Deleted: &yes})
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.NotNil(t, got.DeletedAt)
	require.False(t, got.Enabled, "soft delete wins over enabled")

	_, err = e.auth.Authenticate(ctx, "alice@example.com", testPassword)
	requireKind(t, err, ErrNotAuthorized, "Account is disabled or not verified")

	got, err = e.accounts.UpdateStatus(ctx, alice.UUID, StatusParams{Deleted: &no, Enabled: &yes, Verified: &yes})
	require.NoError(t, err)
	require.False(t, got.Deleted)
	require.Nil(t, got.DeletedAt)
	require.True(t, got.Usable())
}

func TestSoftDeleteAndDelete(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")

	require.NoError(t, e.accounts.SoftDelete(ctx, alice.UUID))
	got, err := e.accounts.Get(ctx, alice.UUID)
	require.NoError(t, err)
	require.True(t, got.Deleted)

	require.NoError(t, e.accounts.Delete(ctx, alice.UUID))
	_, err = e.accounts.Get(ctx, alice.UUID)
	requireKind(t, err, ErrNotFound, "User with uuid "+alice.UUID+" not found")
	require.ErrorIs(t, e.accounts.Delete(ctx, alice.UUID), ErrNotFound)
}

func TestUnlock(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.insertUser(t, "alice@example.com")

	for range domain.MaxFailedLogins {
		_, _ = e.auth.Authenticate(ctx, "alice@example.com", "wrong")
	}
	require.True(t, e.reload(t, alice.UUID).Locked)

	got, err := e.accounts.Unlock(ctx, alice.UUID)
	require.NoError(t, err)
	require.False(t, got.Locked)
	require.Zero(t, got.FailedLogins)

	_, err = e.auth.Authenticate(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
}

func TestList(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	for _, u := range []string{"ann@example.com", "bea@example.com", "cat@example.com"} {
		e.insertUser(t, u)
	}

	page, err := e.accounts.List(ctx, store.AccountFilter{Page: 1, Size: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Accounts, 1)
	require.Equal(t, "cat@example.com", page.Accounts[0].Username)
}

func TestChangeRoles(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	e.bootstrap(t)
	alice := e.insertUser(t, "alice@example.com")

	_, err := e.accounts.ChangeRoles(ctx, alice.UUID, []string{domain.SuperAdminRole, "Nope"})
	requireKind(t, err, ErrNotFound, "Role with name Nope not found")
	roles, err := e.accounts.Roles(ctx, alice.UUID)
	require.NoError(t, err)
	require.Empty(t, roles)

	roles, err = e.accounts.ChangeRoles(ctx, alice.UUID, []string{domain.SuperAdminRole, domain.SuperAdminRole})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, domain.SuperAdminRole, roles[0].Name)

	_, err = e.accounts.ChangeRoles(ctx, "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
}
