package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/aussiebroadwan/trackr/pkg/idx"
	"github.com/aussiebroadwan/trackr/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

var ErrBootstrapMissingSuperuser = errors.New("bootstrap requires a superuser username and password")

// BootstrapService seeds permissions, roles and the superuser at start-up.
// Running it again leaves existing rows alone.
type BootstrapService struct {
	Store  store.Store
	Hasher PasswordHasher
	Clock  clockwork.Clock
}

// BootstrapResult reports what a run created.
type BootstrapResult struct {
	PermissionsCreated int
	RolesCreated       int
	SuperuserUUID      string
	SuperuserCreated   bool
}

func (s *BootstrapService) Bootstrap(ctx context.Context, req domain.BootstrapData) (BootstrapResult, error) {
	l := slogx.FromContext(ctx)
	var res BootstrapResult

	if req.SuperuserUsername == "" || req.SuperuserPassword == "" {
		return res, ErrBootstrapMissingSuperuser
	}
	if len(req.Roles) == 0 {
		req.Roles = domain.DefaultRoles()
	}

	// Hash outside the transaction; argon2 is slow and sqlite has one writer.
	passHash, err := s.Hasher.Hash(req.SuperuserPassword)
	if err != nil {
		l.Error("failed to hash superuser password", slog.Any("error", err))
		return res, err
	}

	now := clockOrReal(s.Clock).Now().UTC()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 1. Permissions
		existing, err := tx.Permissions().ListAll(ctx)
		if err != nil {
			return err
		}
		have := make(map[string]struct{}, len(existing))
		for _, p := range existing {
			have[p.Name] = struct{}{}
		}
		for _, p := range domain.DefaultPermissions() {
			if _, ok := have[p.Name]; ok {
				continue
			}
			p.ID = idx.NewAt(now).String()
			if err := tx.Permissions().CreatePermission(ctx, p); err != nil {
				return err
			}
			res.PermissionsCreated++
		}

		// 2. Roles
		var superAdminID string
		for _, def := range req.Roles {
			role, err := tx.Roles().GetRoleByName(ctx, def.Name)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrNotFound):
				perms, err := tx.Permissions().GetByNames(ctx, def.Permissions)
				if err != nil {
					return err
				}
				role = domain.Role{
					ID:          idx.NewAt(now).String(),
					Name:        def.Name,
					Permissions: perms,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := tx.Roles().CreateRole(ctx, role); err != nil {
					l.Error("failed to create role", slog.String("role_name", def.Name), slog.Any("error", err))
					return err
				}
				res.RolesCreated++
			default:
				return err
			}
			if def.Name == domain.SuperAdminRole {
				superAdminID = role.ID
			}
		}
		if superAdminID == "" {
			return errors.New("bootstrap must define the " + domain.SuperAdminRole + " role")
		}

		// 3. Superuser
		acc, err := tx.Accounts().GetByUsername(ctx, req.SuperuserUsername)
		switch {
		case err == nil:
			res.SuperuserUUID = acc.UUID
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		a := domain.NewVerifiedAccount(req.SuperuserUsername, req.SuperuserFirstName, req.SuperuserLastName, passHash, now)
		if err := tx.Accounts().Create(ctx, *a); err != nil {
			l.Error("failed to create superuser", slog.Any("error", err))
			return err
		}
		if err := tx.Accounts().SetRoles(ctx, a.UUID, []string{superAdminID}); err != nil {
			return err
		}
		res.SuperuserUUID = a.UUID
		res.SuperuserCreated = true
		return nil
	})
	if err != nil {
		return BootstrapResult{}, err
	}

	l.Info("bootstrap complete",
		slog.Int("permissions_created", res.PermissionsCreated),
		slog.Int("roles_created", res.RolesCreated),
		slog.String("superuser_uuid", res.SuperuserUUID),
		slog.Bool("superuser_created", res.SuperuserCreated),
	)
	return res, nil
}
