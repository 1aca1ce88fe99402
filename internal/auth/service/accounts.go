package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/cryptox"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// Notifier delivers out-of-band tokens. It only transports the value; the
// account flows here decide when one is sent.
type Notifier interface {
	SendVerification(ctx context.Context, to string, t domain.Token) error
	SendPasswordReset(ctx context.Context, to string, t domain.Token) error
}

type RegisterParams struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// UpdateParams changes only the non-nil fields.
type UpdateParams struct {
	Username  *string
	FirstName *string
	LastName  *string
	Password  *string
}

// StatusParams changes only the non-nil flags. Deleted=true soft-deletes.
type StatusParams struct {
	Enabled  *bool
	Verified *bool
	Deleted  *bool
}

type AccountPage struct {
	Accounts []domain.Account
	Total    int
	Page     int
	Size     int
}

type AccountService struct {
	Store        store.Store
	Hasher       PasswordHasher
	Auth         *AuthenticationService
	Verification *TokenManager
	Reset        *TokenManager
	Notifier     Notifier
	// Throttle limits recovery and resend emails per username. Nil allows
	// everything.
	Throttle Throttle
	Clock    clockwork.Clock
}

func (s *AccountService) throttle() Throttle {
	if s.Throttle == nil {
		return noThrottle{}
	}
	return s.Throttle
}

func (s *AccountService) mutate(ctx context.Context, uuid string, fn func(a *domain.Account) (bool, error)) (domain.Account, error) {
	a, err := mutateAccount(ctx, s.Store, clockOrReal(s.Clock), uuid, fn)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("User", "User with uuid %s not found", uuid)
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, alreadyExists("User", "User with that username already exists")
		}
		return domain.Account{}, passthrough(ctx, "failed to update account", err)
	}
	return a, nil
}

func (s *AccountService) ensureUsernameFree(ctx context.Context, username, exceptUUID string) error {
	existing, err := s.Store.Accounts().GetByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return serverError(ctx, "failed to check username", err)
	case existing.UUID == exceptUUID:
		return nil
	default:
		return alreadyExists("User", "User with username %s already exists", username)
	}
}

// Register creates a disabled, unverified account holding a fresh
// verification token and sends it. If the send fails the account is
// deleted again so it cannot be stranded.
func (s *AccountService) Register(ctx context.Context, p RegisterParams) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	if err := s.ensureUsernameFree(ctx, p.Username, ""); err != nil {
		return domain.Account{}, err
	}

	hash, err := s.Hasher.Hash(p.Password)
	if err != nil {
		return domain.Account{}, serverError(ctx, "failed to hash password", err)
	}

	a := domain.NewAccount(p.Username, p.FirstName, p.LastName, hash, clockOrReal(s.Clock).Now())
	tok, err := s.Verification.Attach(a)
	if err != nil {
		return domain.Account{}, serverError(ctx, "failed to generate verification token", err)
	}

	if err := s.Store.Accounts().Create(ctx, *a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, alreadyExists("User", "User with username %s already exists", p.Username)
		}
		return domain.Account{}, serverError(ctx, "failed to create account", err)
	}
	a.Version = 1

	if err := s.Notifier.SendVerification(ctx, a.Username, *tok); err != nil {
		l.Error("verification email failed, rolling back registration",
			slog.String("account_uuid", a.UUID), slog.Any("error", err))
		if derr := s.Store.Accounts().Delete(ctx, a.UUID); derr != nil {
			l.Error("failed to delete account after send failure",
				slog.String("account_uuid", a.UUID), slog.Any("error", derr))
		}
		return domain.Account{}, serverError(ctx, "registration failed", err)
	}

	l.Info("account registered", slog.String("account_uuid", a.UUID))
	return *a, nil
}

// InsertVerified creates an account that can log in straight away.
func (s *AccountService) InsertVerified(ctx context.Context, p RegisterParams) (domain.Account, error) {
	if err := s.ensureUsernameFree(ctx, p.Username, ""); err != nil {
		return domain.Account{}, err
	}

	hash, err := s.Hasher.Hash(p.Password)
	if err != nil {
		return domain.Account{}, serverError(ctx, "failed to hash password", err)
	}

	a := domain.NewVerifiedAccount(p.Username, p.FirstName, p.LastName, hash, clockOrReal(s.Clock).Now())
	if err := s.Store.Accounts().Create(ctx, *a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, alreadyExists("User", "User with username %s already exists", p.Username)
		}
		return domain.Account{}, serverError(ctx, "failed to create account", err)
	}
	a.Version = 1
	return *a, nil
}

// Verify completes registration with a verification token.
func (s *AccountService) Verify(ctx context.Context, token string) (domain.Account, error) {
	const invalid = "The verification link is invalid or has expired. Please register again."

	acc, err := s.Verification.ResolveValid(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Account{}, notAuthorized("Token", invalid)
		}
		return domain.Account{}, err
	}

	return s.mutate(ctx, acc.UUID, func(a *domain.Account) (bool, error) {
		if t := a.Slot(domain.TokenVerification); t == nil || t.Value != token {
			return false, notAuthorized("Token", invalid)
		}
		a.MarkVerified()
		s.Verification.Retire(a)
		return true, nil
	})
}

// throttleKey keeps raw email addresses out of the throttle backend.
func throttleKey(action, username string) string {
	return action + ":" + cryptox.Fingerprint(strings.ToLower(strings.TrimSpace(username)))
}

// ResendVerification re-sends the live verification token, or a fresh one
// if it lapsed. Unknown or already verified usernames succeed silently.
func (s *AccountService) ResendVerification(ctx context.Context, username string) error {
	if err := s.throttle().Allow(ctx, throttleKey("verify", username)); err != nil {
		return err
	}

	acc, err := s.Store.Accounts().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return serverError(ctx, "failed to load account", err)
	}
	if acc.Verified || acc.Deleted {
		return nil
	}

	tok, err := s.Verification.IssueFor(ctx, acc.UUID)
	if err != nil {
		return err
	}
	if err := s.Notifier.SendVerification(ctx, acc.Username, tok); err != nil {
		return serverError(ctx, "failed to send verification email", err)
	}
	return nil
}

// RequestPasswordRecovery sends a reset token. Unknown usernames succeed
// without side effects so callers cannot probe for accounts.
func (s *AccountService) RequestPasswordRecovery(ctx context.Context, username string) error {
	if err := s.throttle().Allow(ctx, throttleKey("recovery", username)); err != nil {
		return err
	}

	acc, err := s.Store.Accounts().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Info("password recovery for unknown username")
			return nil
		}
		return serverError(ctx, "failed to load account", err)
	}
	if acc.Deleted {
		return nil
	}

	tok, err := s.Reset.IssueFor(ctx, acc.UUID)
	if err != nil {
		return err
	}
	if err := s.Notifier.SendPasswordReset(ctx, acc.Username, tok); err != nil {
		return serverError(ctx, "failed to send password reset email", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token. The change stamp
// invalidates every session issued before it.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	const invalid = "The password reset link is invalid or has expired."

	acc, err := s.Reset.ResolveValid(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notAuthorized("Token", invalid)
		}
		return err
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return serverError(ctx, "failed to hash password", err)
	}

	_, err = s.mutate(ctx, acc.UUID, func(a *domain.Account) (bool, error) {
		if t := a.Slot(domain.TokenPasswordReset); t == nil || t.Value != token {
			return false, notAuthorized("Token", invalid)
		}
		a.SetPassword(hash, clockOrReal(s.Clock).Now())
		s.Reset.Retire(a)
		return true, nil
	})
	if err == nil {
		slogx.FromContext(ctx).Info("password reset", slog.String("account_uuid", acc.UUID))
	}
	return err
}

// ChangePassword replaces the password after checking the old one. A wrong
// old password does not count towards lockout.
func (s *AccountService) ChangePassword(ctx context.Context, uuid, oldPassword, newPassword string) error {
	acc, err := s.Get(ctx, uuid)
	if err != nil {
		return err
	}
	if !s.Auth.CheckPasswordOnly(ctx, acc.Username, oldPassword) {
		return notAuthorized("User", "User with username %s not authorized", acc.Username)
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return serverError(ctx, "failed to hash password", err)
	}

	_, err = s.mutate(ctx, uuid, func(a *domain.Account) (bool, error) {
		a.SetPassword(hash, clockOrReal(s.Clock).Now())
		return true, nil
	})
	return err
}

func (s *AccountService) Get(ctx context.Context, uuid string) (domain.Account, error) {
	a, err := s.Store.Accounts().GetByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("User", "User with uuid %s not found", uuid)
		}
		return domain.Account{}, serverError(ctx, "failed to load account", err)
	}
	return a, nil
}

func (s *AccountService) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	a, err := s.Store.Accounts().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("User", "User with username %s not found", username)
		}
		return domain.Account{}, serverError(ctx, "failed to load account", err)
	}
	return a, nil
}

func (s *AccountService) List(ctx context.Context, f store.AccountFilter) (AccountPage, error) {
	accounts, total, err := s.Store.Accounts().List(ctx, f)
	if err != nil {
		return AccountPage{}, serverError(ctx, "failed to list accounts", err)
	}
	return AccountPage{Accounts: accounts, Total: total, Page: f.Page, Size: f.Size}, nil
}

func (s *AccountService) Update(ctx context.Context, uuid string, p UpdateParams) (domain.Account, error) {
	if p.Username != nil {
		if err := s.ensureUsernameFree(ctx, *p.Username, uuid); err != nil {
			return domain.Account{}, err
		}
	}

	var hash string
	if p.Password != nil {
		h, err := s.Hasher.Hash(*p.Password)
		if err != nil {
			return domain.Account{}, serverError(ctx, "failed to hash password", err)
		}
		hash = h
	}

	return s.mutate(ctx, uuid, func(a *domain.Account) (bool, error) {
		if p.Username != nil {
			a.Username = *p.Username
		}
		if p.FirstName != nil {
			a.FirstName = *p.FirstName
		}
		if p.LastName != nil {
			a.LastName = *p.LastName
		}
		if p.Password != nil {
			a.SetPassword(hash, clockOrReal(s.Clock).Now())
		}
		return true, nil
	})
}

func (s *AccountService) UpdateStatus(ctx context.Context, uuid string, p StatusParams) (domain.Account, error) {
	return s.mutate(ctx, uuid, func(a *domain.Account) (bool, error) {
		if p.Enabled != nil {
			a.Enabled = *p.Enabled
		}
		if p.Verified != nil {
			a.Verified = *p.Verified
		}
		if p.Deleted != nil {
			if *p.Deleted {
				a.SoftDelete(clockOrReal(s.Clock).Now())
			} else {
				a.Restore()
			}
		}
		return true, nil
	})
}

// SoftDelete keeps the record but makes it permanently unusable.
func (s *AccountService) SoftDelete(ctx context.Context, uuid string) error {
	_, err := s.mutate(ctx, uuid, func(a *domain.Account) (bool, error) {
		a.SoftDelete(clockOrReal(s.Clock).Now())
		return true, nil
	})
	return err
}

// Delete removes the account and everything that cascades from it.
func (s *AccountService) Delete(ctx context.Context, uuid string) error {
	if err := s.Store.Accounts().Delete(ctx, uuid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("User", "User with uuid %s not found", uuid)
		}
		return serverError(ctx, "failed to delete account", err)
	}
	return nil
}

// Unlock clears a lock and the failure counter ahead of expiry.
func (s *AccountService) Unlock(ctx context.Context, uuid string) (domain.Account, error) {
	return s.mutate(ctx, uuid, func(a *domain.Account) (bool, error) {
		if !a.Locked && a.FailedLogins == 0 {
			return false, nil
		}
		a.Unlock()
		return true, nil
	})
}

func (s *AccountService) Roles(ctx context.Context, uuid string) ([]domain.Role, error) {
	if _, err := s.Get(ctx, uuid); err != nil {
		return nil, err
	}
	roles, err := s.Store.Accounts().Roles(ctx, uuid)
	if err != nil {
		return nil, serverError(ctx, "failed to load roles", err)
	}
	return roles, nil
}

// ChangeRoles replaces the account's roles with the named ones.
func (s *AccountService) ChangeRoles(ctx context.Context, uuid string, roleNames []string) ([]domain.Role, error) {
	var roles []domain.Role
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Accounts().GetByUUID(ctx, uuid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("User", "User with uuid %s not found", uuid)
			}
			return err
		}

		ids := make([]string, 0, len(roleNames))
		seen := make(map[string]struct{}, len(roleNames))
		for _, name := range roleNames {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			r, err := tx.Roles().GetRoleByName(ctx, name)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return notFound("Role", "Role with name %s not found", name)
				}
				return err
			}
			ids = append(ids, r.ID)
		}

		if err := tx.Accounts().SetRoles(ctx, uuid, ids); err != nil {
			return err
		}
		var err error
		roles, err = tx.Accounts().Roles(ctx, uuid)
		return err
	})
	if err != nil {
		return nil, passthrough(ctx, "failed to change roles", err)
	}
	return roles, nil
}
