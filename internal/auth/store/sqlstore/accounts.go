package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
)

const accountColumns = `uuid, username, firstname, lastname, password_hash, password_changed_at,
	enabled, verified, deleted, deleted_at, locked, locked_at, failed_logins,
	version, created_at, updated_at`

type accountRow struct {
	UUID              string     `db:"uuid"`
	Username          string     `db:"username"`
	FirstName         string     `db:"firstname"`
	LastName          string     `db:"lastname"`
	PasswordHash      string     `db:"password_hash"`
	PasswordChangedAt time.Time  `db:"password_changed_at"`
	Enabled           bool       `db:"enabled"`
	Verified          bool       `db:"verified"`
	Deleted           bool       `db:"deleted"`
	DeletedAt         *time.Time `db:"deleted_at"`
	Locked            bool       `db:"locked"`
	LockedAt          *time.Time `db:"locked_at"`
	FailedLogins      int        `db:"failed_logins"`
	Version           int64      `db:"version"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

type tokenRow struct {
	Kind        string    `db:"kind"`
	Value       string    `db:"value"`
	AccountUUID string    `db:"account_uuid"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

type accountsRepo struct {
	q queryer
	d Dialect
}

func (r *accountsRepo) GetByUUID(ctx context.Context, uuid string) (domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uuid = ?`, uuid)
}

func (r *accountsRepo) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
}

func (r *accountsRepo) GetByToken(ctx context.Context, kind domain.TokenKind, value string) (domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE uuid = (SELECT account_uuid FROM oob_tokens WHERE kind = ? AND value = ?)`,
		string(kind), value)
}

func (r *accountsRepo) getOne(ctx context.Context, query string, args ...any) (domain.Account, error) {
	var row accountRow
	if err := get(ctx, r.q, &row, query, args...); err != nil {
		return domain.Account{}, r.d.mapError(err)
	}
	a := mapAccount(row)
	if err := r.loadTokens(ctx, &a); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (r *accountsRepo) loadTokens(ctx context.Context, a *domain.Account) error {
	var rows []tokenRow
	err := selectAll(ctx, r.q, &rows,
		`SELECT kind, value, account_uuid, expires_at, created_at FROM oob_tokens WHERE account_uuid = ?`,
		a.UUID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		a.SetSlot(mapToken(row))
	}
	return nil
}

func (r *accountsRepo) List(ctx context.Context, f store.AccountFilter) ([]domain.Account, int, error) {
	where, args := accountWhere(f)

	total, err := count(ctx, r.q, `SELECT COUNT(*) FROM accounts a`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + prefixColumns("a.", accountColumns) + ` FROM accounts a` + where + ` ORDER BY a.username`
	if f.Size > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Size, f.Page*f.Size)
	}

	var rows []accountRow
	if err := selectAll(ctx, r.q, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	accounts := make([]domain.Account, len(rows))
	for i, row := range rows {
		accounts[i] = mapAccount(row)
	}
	return accounts, total, nil
}

func accountWhere(f store.AccountFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UUID != "" {
		conds = append(conds, `a.uuid = ?`)
		args = append(args, f.UUID)
	}
	if f.UsernamePrefix != "" {
		conds = append(conds, `UPPER(a.username) LIKE ?`)
		args = append(args, strings.ToUpper(f.UsernamePrefix)+"%")
	}
	if f.LastNamePrefix != "" {
		conds = append(conds, `UPPER(a.lastname) LIKE ?`)
		args = append(args, strings.ToUpper(f.LastNamePrefix)+"%")
	}
	if f.Enabled != nil {
		conds = append(conds, `a.enabled = ?`)
		args = append(args, *f.Enabled)
	}
	if f.Verified != nil {
		conds = append(conds, `a.verified = ?`)
		args = append(args, *f.Verified)
	}
	if f.Deleted != nil {
		conds = append(conds, `a.deleted = ?`)
		args = append(args, *f.Deleted)
	}
	if len(f.Permissions) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Permissions)), ",")
		conds = append(conds, `EXISTS (SELECT 1 FROM account_roles ar
			JOIN role_permissions rp ON rp.role_id = ar.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ar.account_uuid = a.uuid AND p.name IN (`+marks+`))`)
		for _, p := range f.Permissions {
			args = append(args, p)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args
}

func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	_, err := exec(ctx, r.q, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.UUID, a.Username, a.FirstName, a.LastName, a.PasswordHash, a.PasswordChangedAt.UTC(),
		a.Enabled, a.Verified, a.Deleted, utcPtr(a.DeletedAt), a.Locked, utcPtr(a.LockedAt), a.FailedLogins,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return r.d.mapError(err)
	}
	return r.writeSlots(ctx, a)
}

func (r *accountsRepo) Save(ctx context.Context, a domain.Account) (int64, error) {
	res, err := exec(ctx, r.q, `UPDATE accounts SET
			username = ?, firstname = ?, lastname = ?, password_hash = ?, password_changed_at = ?,
			enabled = ?, verified = ?, deleted = ?, deleted_at = ?,
			locked = ?, locked_at = ?, failed_logins = ?,
			version = version + 1, updated_at = ?
		WHERE uuid = ? AND version = ?`,
		a.Username, a.FirstName, a.LastName, a.PasswordHash, a.PasswordChangedAt.UTC(),
		a.Enabled, a.Verified, a.Deleted, utcPtr(a.DeletedAt),
		a.Locked, utcPtr(a.LockedAt), a.FailedLogins,
		a.UpdatedAt.UTC(),
		a.UUID, a.Version)
	if err != nil {
		return 0, r.d.mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if _, err := count(ctx, r.q, `SELECT 1 FROM accounts WHERE uuid = ?`, a.UUID); err != nil {
			return 0, r.d.mapError(err)
		}
		return 0, store.ErrConflict
	}

	if err := r.writeSlots(ctx, a); err != nil {
		return 0, err
	}
	return a.Version + 1, nil
}

// writeSlots makes the stored tokens match the account's two slots.
func (r *accountsRepo) writeSlots(ctx context.Context, a domain.Account) error {
	for _, kind := range []domain.TokenKind{domain.TokenVerification, domain.TokenPasswordReset} {
		t := a.Slot(kind)
		if t == nil {
			if _, err := exec(ctx, r.q,
				`DELETE FROM oob_tokens WHERE account_uuid = ? AND kind = ?`, a.UUID, string(kind)); err != nil {
				return err
			}
			continue
		}

		_, err := exec(ctx, r.q, `INSERT INTO oob_tokens (kind, value, account_uuid, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, account_uuid) DO UPDATE SET
				value = excluded.value, expires_at = excluded.expires_at, created_at = excluded.created_at`,
			string(kind), t.Value, a.UUID, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
		if err != nil {
			return r.d.mapError(err)
		}
	}
	return nil
}

func (r *accountsRepo) Delete(ctx context.Context, uuid string) error {
	res, err := exec(ctx, r.q, `DELETE FROM accounts WHERE uuid = ?`, uuid)
	if err != nil {
		return r.d.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) DeleteUnverified(ctx context.Context, uuid string) error {
	res, err := exec(ctx, r.q, `DELETE FROM accounts WHERE uuid = ? AND verified = ?`, uuid, false)
	if err != nil {
		return r.d.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) ListStaleTokens(ctx context.Context, kind domain.TokenKind, cutoff time.Time) ([]domain.Account, error) {
	var rows []accountRow
	err := selectAll(ctx, r.q, &rows, `SELECT `+prefixColumns("a.", accountColumns)+`
		FROM accounts a JOIN oob_tokens t ON t.account_uuid = a.uuid
		WHERE t.kind = ? AND t.created_at < ?
		ORDER BY t.created_at`,
		string(kind), cutoff.UTC())
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		a := mapAccount(row)
		if err := r.loadTokens(ctx, &a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := count(ctx, r.q, `SELECT COUNT(*) FROM accounts`)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (r *accountsRepo) Roles(ctx context.Context, uuid string) ([]domain.Role, error) {
	var rows []roleRow
	err := selectAll(ctx, r.q, &rows, `SELECT r.id, r.name, r.created_at, r.updated_at
		FROM roles r JOIN account_roles ar ON ar.role_id = r.id
		WHERE ar.account_uuid = ?
		ORDER BY r.name`, uuid)
	if err != nil {
		return nil, err
	}
	return withPermissions(ctx, r.q, rows)
}

func (r *accountsRepo) SetRoles(ctx context.Context, uuid string, roleIDs []string) error {
	if _, err := exec(ctx, r.q, `DELETE FROM account_roles WHERE account_uuid = ?`, uuid); err != nil {
		return err
	}
	for _, id := range roleIDs {
		if _, err := exec(ctx, r.q,
			`INSERT INTO account_roles (account_uuid, role_id) VALUES (?, ?)`, uuid, id); err != nil {
			return r.d.mapError(err)
		}
	}
	return nil
}

func (r *accountsRepo) PermissionNames(ctx context.Context, uuid string) ([]string, error) {
	var names []string
	err := selectAll(ctx, r.q, &names, `SELECT DISTINCT p.name
		FROM account_roles ar
		JOIN role_permissions rp ON rp.role_id = ar.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ar.account_uuid = ?
		ORDER BY p.name`, uuid)
	if err != nil {
		return nil, err
	}
	return names, nil
}

func mapAccount(row accountRow) domain.Account {
	return domain.Account{
		UUID:              row.UUID,
		Username:          row.Username,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		PasswordHash:      row.PasswordHash,
		PasswordChangedAt: row.PasswordChangedAt.UTC(),
		Enabled:           row.Enabled,
		Verified:          row.Verified,
		Deleted:           row.Deleted,
		DeletedAt:         utcPtr(row.DeletedAt),
		Locked:            row.Locked,
		LockedAt:          utcPtr(row.LockedAt),
		FailedLogins:      row.FailedLogins,
		Version:           row.Version,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func mapToken(row tokenRow) *domain.Token {
	return &domain.Token{
		Kind:        domain.TokenKind(row.Kind),
		Value:       row.Value,
		AccountUUID: row.AccountUUID,
		ExpiresAt:   row.ExpiresAt.UTC(),
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
