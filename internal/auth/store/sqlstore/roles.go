package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
	"github.com/aussiebroadwan/trackr/internal/auth/store"
)

type roleRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type rolePermissionRow struct {
	RoleID string `db:"role_id"`
	permissionRow
}

type rolesRepo struct {
	q queryer
	d Dialect
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	return r.getOne(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE id = ?`, id)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	return r.getOne(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE name = ?`, name)
}

func (r *rolesRepo) getOne(ctx context.Context, query string, args ...any) (domain.Role, error) {
	var row roleRow
	if err := get(ctx, r.q, &row, query, args...); err != nil {
		return domain.Role{}, r.d.mapError(err)
	}
	roles, err := withPermissions(ctx, r.q, []roleRow{row})
	if err != nil {
		return domain.Role{}, err
	}
	return roles[0], nil
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	var rows []roleRow
	if err := selectAll(ctx, r.q, &rows, `SELECT id, name, created_at, updated_at FROM roles ORDER BY name`); err != nil {
		return nil, err
	}
	return withPermissions(ctx, r.q, rows)
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := exec(ctx, r.q, `INSERT INTO roles (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		role.ID, role.Name, role.CreatedAt.UTC(), role.UpdatedAt.UTC())
	if err != nil {
		return r.d.mapError(err)
	}
	return r.linkPermissions(ctx, role)
}

func (r *rolesRepo) UpdateRole(ctx context.Context, role domain.Role) error {
	res, err := exec(ctx, r.q, `UPDATE roles SET name = ?, updated_at = ? WHERE id = ?`,
		role.Name, role.UpdatedAt.UTC(), role.ID)
	if err != nil {
		return r.d.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	if _, err := exec(ctx, r.q, `DELETE FROM role_permissions WHERE role_id = ?`, role.ID); err != nil {
		return err
	}
	return r.linkPermissions(ctx, role)
}

func (r *rolesRepo) linkPermissions(ctx context.Context, role domain.Role) error {
	for _, p := range role.Permissions {
		_, err := exec(ctx, r.q, `INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
			role.ID, p.ID)
		if err != nil {
			return r.d.mapError(err)
		}
	}
	return nil
}

func (r *rolesRepo) DeleteRole(ctx context.Context, id string) error {
	res, err := exec(ctx, r.q, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return r.d.mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *rolesRepo) CountAssignments(ctx context.Context, id string) (int, error) {
	return count(ctx, r.q, `SELECT COUNT(*) FROM account_roles WHERE role_id = ?`, id)
}

func (r *rolesRepo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := count(ctx, r.q, `SELECT COUNT(*) FROM roles`)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// withPermissions attaches permissions to each role in one query.
func withPermissions(ctx context.Context, q queryer, rows []roleRow) ([]domain.Role, error) {
	roles := make([]domain.Role, len(rows))
	if len(rows) == 0 {
		return roles, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var perms []rolePermissionRow
	err := selectIn(ctx, q, &perms, `SELECT rp.role_id, p.id, p.resource, p.action, p.name
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (?)
		ORDER BY p.name`, ids)
	if err != nil {
		return nil, err
	}

	byRole := make(map[string][]domain.Permission, len(rows))
	for _, p := range perms {
		byRole[p.RoleID] = append(byRole[p.RoleID], mapPermission(p.permissionRow))
	}

	for i, row := range rows {
		roles[i] = domain.Role{
			ID:          row.ID,
			Name:        row.Name,
			Permissions: byRole[row.ID],
			CreatedAt:   row.CreatedAt.UTC(),
			UpdatedAt:   row.UpdatedAt.UTC(),
		}
	}
	return roles, nil
}
