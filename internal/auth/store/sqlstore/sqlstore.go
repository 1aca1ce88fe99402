// Package sqlstore implements the store interfaces once over sqlx. Queries
// are written with '?' placeholders and rebound for the driver, so the
// sqlite and postgres drivers share every repo.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/trackr/internal/auth/store"
	"github.com/jmoiron/sqlx"
)

// Dialect holds the driver specific pieces the shared repos need.
type Dialect struct {
	// IsUniqueViolation reports a unique or primary key constraint failure.
	IsUniqueViolation func(error) bool
	// IsForeignKeyViolation reports a foreign key constraint failure.
	IsForeignKeyViolation func(error) bool
}

// Store is embedded by the concrete drivers, which add ApplyMigrations.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

func New(db *sqlx.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB exposes the handle for migrations.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, dialect: s.dialect}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Rollback after a successful commit returns sql.ErrTxDone, which we ignore.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Accounts() store.Accounts       { return &accountsRepo{q: s.db, d: s.dialect} }
func (s *Store) Roles() store.Roles             { return &rolesRepo{q: s.db, d: s.dialect} }
func (s *Store) Permissions() store.Permissions { return &permissionsRepo{q: s.db, d: s.dialect} }

type txStore struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the outer DB stays open.
func (t *txStore) Close() error { return nil }

// Ping is a no-op; the transaction already holds a live connection.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

// ApplyMigrations is a no-op; migrations run before any transaction starts.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Accounts() store.Accounts       { return &accountsRepo{q: t.tx, d: t.dialect} }
func (t *txStore) Roles() store.Roles             { return &rolesRepo{q: t.tx, d: t.dialect} }
func (t *txStore) Permissions() store.Permissions { return &permissionsRepo{q: t.tx, d: t.dialect} }

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
}

func get(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

func selectAll(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// selectIn expands slice arguments for IN (?) clauses.
func selectIn(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	expanded, params, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return selectAll(ctx, q, dest, expanded, params...)
}

func (d Dialect) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case d.IsUniqueViolation != nil && d.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	case d.IsForeignKeyViolation != nil && d.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", store.ErrReferenced, err)
	default:
		return err
	}
}

func count(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	if err := get(ctx, q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
