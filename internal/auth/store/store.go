package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrConflict means the row changed since it was read (version mismatch).
	ErrConflict = errors.New("store: concurrent modification")
	// ErrReferenced means a delete was blocked by a foreign key.
	ErrReferenced = errors.New("store: still referenced")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repos hang off it as methods so a transaction-scoped Store
// exposes the same shape and nobody opens a transaction inside another.
type Store interface {
	Accounts() Accounts
	Roles() Roles
	Permissions() Permissions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// AccountFilter narrows List. Zero values do not filter. Prefix matches are
// case-insensitive.
type AccountFilter struct {
	UUID           string
	UsernamePrefix string
	LastNamePrefix string
	Enabled        *bool
	Verified       *bool
	Deleted        *bool
	// Permissions keeps accounts holding any of the named permissions.
	Permissions []string

	Page int // zero-based
	Size int // 0 means no limit
}

type Accounts interface {
	// GetByUUID returns the account with both token slots loaded.
	GetByUUID(ctx context.Context, uuid string) (domain.Account, error)

	// GetByUsername returns the account with both token slots loaded.
	GetByUsername(ctx context.Context, username string) (domain.Account, error)

	// GetByToken returns the account owning the token value of kind.
	GetByToken(ctx context.Context, kind domain.TokenKind, value string) (domain.Account, error)

	// List returns one page of accounts ordered by username and the total
	// number of matches.
	List(ctx context.Context, f AccountFilter) ([]domain.Account, int, error)

	// Create inserts the account and any tokens it holds. Version starts at 1.
	Create(ctx context.Context, a domain.Account) error

	// Save writes every mutable field and rewrites both token slots, but only
	// if the stored version still equals a.Version. It returns the new
	// version, or ErrConflict.
	Save(ctx context.Context, a domain.Account) (int64, error)

	// Delete removes the account; tokens and role links cascade.
	Delete(ctx context.Context, uuid string) error

	// DeleteUnverified deletes the account only while it is unverified.
	// It returns ErrNotFound when no unverified account has uuid.
	DeleteUnverified(ctx context.Context, uuid string) error

	// ListStaleTokens returns accounts holding a token of kind created
	// before cutoff.
	ListStaleTokens(ctx context.Context, kind domain.TokenKind, cutoff time.Time) ([]domain.Account, error)

	IsEmpty(ctx context.Context) (bool, error)

	// Roles returns the account's roles with their permissions.
	Roles(ctx context.Context, uuid string) ([]domain.Role, error)

	// SetRoles replaces the account's role memberships.
	SetRoles(ctx context.Context, uuid string, roleIDs []string) error

	// PermissionNames is the distinct union of permission names across the
	// account's roles, read fresh on every call.
	PermissionNames(ctx context.Context, uuid string) ([]string, error)
}

type Roles interface {
	// GetRoleByID returns the role with its permissions.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListAll returns every role ordered by name.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts the role and links its permissions by id.
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRole renames the role and replaces its permission links.
	UpdateRole(ctx context.Context, r domain.Role) error

	// DeleteRole fails with ErrReferenced while accounts hold the role.
	DeleteRole(ctx context.Context, id string) error

	// CountAssignments is the number of accounts holding the role.
	CountAssignments(ctx context.Context, id string) (int, error)

	IsEmpty(ctx context.Context) (bool, error)
}

type Permissions interface {
	// ListAll returns every permission ordered by name.
	ListAll(ctx context.Context) ([]domain.Permission, error)

	// GetByNames returns the permissions matching names. Unknown names are
	// skipped; callers compare lengths to detect them.
	GetByNames(ctx context.Context, names []string) ([]domain.Permission, error)

	CreatePermission(ctx context.Context, p domain.Permission) error

	IsEmpty(ctx context.Context) (bool, error)
}
