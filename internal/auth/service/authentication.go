package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/aussiebroadwan/trackr/pkg/jwtx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const unlockTimeLayout = "2006-01-02 15:04:05"

// PasswordHasher hashes and checks passwords. *cryptox.PasswordHasher
// implements it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
}

// SessionIssuer mints and checks bearer session tokens. *jwtx.HS256Issuer
// implements it.
type SessionIssuer interface {
	Issue(subject, accountUUID string) (string, jwtx.Claims, error)
	jwtx.Verifier
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Token   string
	Claims  jwtx.Claims
	Account domain.Account
	// CredentialsStale is advisory: the password is older than
	// domain.PasswordValidity.
	CredentialsStale bool
}

type AuthenticationService struct {
	Store  store.Store
	Hasher PasswordHasher
	Issuer SessionIssuer
	Clock  clockwork.Clock

	// LockDuration defaults to domain.LockDuration.
	LockDuration time.Duration
}

func (s *AuthenticationService) lockDuration() time.Duration {
	if s.LockDuration > 0 {
		return s.LockDuration
	}
	return domain.LockDuration
}

// Authenticate checks username and password, applying the lockout policy,
// and issues a session token on success. Every failure is NotAuthorized.
func (s *AuthenticationService) Authenticate(ctx context.Context, username, password string) (LoginResult, error) {
	l := slogx.FromContext(ctx)
	clock := clockOrReal(s.Clock)

	acc, err := s.Store.Accounts().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, notAuthorized("User", "Invalid credentials")
		}
		return LoginResult{}, serverError(ctx, "failed to load account for login", err)
	}

	now := clock.Now()
	if acc.Locked && !acc.IsLockExpired(now, s.lockDuration()) {
		l.Info("login rejected: account locked", slog.String("account_uuid", acc.UUID))
		return LoginResult{}, lockedError(acc, s.lockDuration())
	}
	if !acc.Usable() {
		l.Info("login rejected: account not usable", slog.String("account_uuid", acc.UUID))
		return LoginResult{}, notAuthorized("User", "Account is disabled or not verified")
	}

	// The hash is checked outside the transaction; argon2 is too slow to
	// hold a write lock for.
	match := true
	if err := s.Hasher.Verify(password, acc.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			return LoginResult{}, serverError(ctx, "failed to verify password", err)
		}
		match = false
	}

	updated, err := mutateAccount(ctx, s.Store, clock, acc.UUID, func(a *domain.Account) (bool, error) {
		now := clock.Now()
		persist := false

		if a.Locked {
			if !a.IsLockExpired(now, s.lockDuration()) {
				return false, lockedError(*a, s.lockDuration())
			}
			a.Unlock()
			persist = true
		}

		// The password changed under us; the verdict no longer applies.
		if a.PasswordHash != acc.PasswordHash {
			return persist, notAuthorized("User", "Invalid credentials")
		}

		if !match {
			remaining := a.RecordFailedLogin(now)
			return true, notAuthorized("User", "Invalid credentials. Remaining attempts: %d", remaining)
		}

		if a.FailedLogins != 0 {
			a.RecordSuccessfulLogin()
			persist = true
		}
		return persist, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotAuthorized) {
			return LoginResult{}, passthrough(ctx, "failed to record login attempt", err)
		}
		if updated.Locked {
			l.Warn("account locked after failed logins", slog.String("account_uuid", updated.UUID))
		}
		return LoginResult{}, err
	}

	token, claims, err := s.Issuer.Issue(updated.Username, updated.UUID)
	if err != nil {
		return LoginResult{}, serverError(ctx, "failed to sign session token", err)
	}

	l.Info("login succeeded", slog.String("account_uuid", updated.UUID))
	return LoginResult{
		Token:            token,
		Claims:           claims,
		Account:          updated,
		CredentialsStale: updated.CredentialsStale(clock.Now()),
	}, nil
}

// lockedError names the unlock time when the lock has one. A lock without
// a timestamp never expires on its own and needs an administrative unlock.
func lockedError(a domain.Account, d time.Duration) error {
	if a.LockedAt == nil {
		return notAuthorized("User", "Account is locked. Contact an administrator")
	}
	unlockAt := a.LockedAt.Add(d).UTC()
	return notAuthorized("User", "Account is locked. Try again after %s", unlockAt.Format(unlockTimeLayout))
}

// CheckPasswordOnly compares password against the stored hash without
// touching lockout state. Any failure reads as false.
func (s *AuthenticationService) CheckPasswordOnly(ctx context.Context, username, password string) bool {
	acc, err := s.Store.Accounts().GetByUsername(ctx, username)
	if err != nil {
		return false
	}
	return s.Hasher.Verify(password, acc.PasswordHash) == nil
}

// ResolveSession verifies a bearer token against the account it names: the
// account must exist and be usable, the subject must be its username, and
// the token must postdate its last password change.
func (s *AuthenticationService) ResolveSession(ctx context.Context, token string) (domain.Account, error) {
	claims, err := s.Issuer.Parse(token)
	if err != nil {
		return domain.Account{}, notAuthorized("Token", "Invalid or expired token")
	}
	if claims.AccountUUID == "" {
		return domain.Account{}, notAuthorized("Token", "Invalid or expired token")
	}

	acc, err := s.Store.Accounts().GetByUUID(ctx, claims.AccountUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notAuthorized("Token", "Invalid or expired token")
		}
		return domain.Account{}, serverError(ctx, "failed to load session account", err)
	}
	if !acc.Usable() {
		return domain.Account{}, notAuthorized("Token", "Invalid or expired token")
	}

	if _, err := s.Issuer.Verify(token, acc.Username, acc.PasswordChangedAt); err != nil {
		slogx.FromContext(ctx).Debug("session token rejected",
			slog.String("account_uuid", acc.UUID), slog.Any("error", err))
		return domain.Account{}, notAuthorized("Token", "Invalid or expired token")
	}
	return acc, nil
}
