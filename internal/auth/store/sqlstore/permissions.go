package sqlstore

import (
	"context"

	"github.com/aussiebroadwan/trackr/internal/auth/domain"
)

type permissionRow struct {
	ID       string `db:"id"`
	Resource string `db:"resource"`
	Action   string `db:"action"`
	Name     string `db:"name"`
}

type permissionsRepo struct {
	q queryer
	d Dialect
}

func (r *permissionsRepo) ListAll(ctx context.Context) ([]domain.Permission, error) {
	var rows []permissionRow
	if err := selectAll(ctx, r.q, &rows, `SELECT id, resource, action, name FROM permissions ORDER BY name`); err != nil {
		return nil, err
	}
	return mapPermissions(rows), nil
}

func (r *permissionsRepo) GetByNames(ctx context.Context, names []string) ([]domain.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var rows []permissionRow
	err := selectIn(ctx, r.q, &rows,
		`SELECT id, resource, action, name FROM permissions WHERE name IN (?) ORDER BY name`, names)
	if err != nil {
		return nil, err
	}
	return mapPermissions(rows), nil
}

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	_, err := exec(ctx, r.q, `INSERT INTO permissions (id, resource, action, name) VALUES (?, ?, ?, ?)`,
		p.ID, p.Resource, p.Action, p.Name)
	return r.d.mapError(err)
}

func (r *permissionsRepo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := count(ctx, r.q, `SELECT COUNT(*) FROM permissions`)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func mapPermission(row permissionRow) domain.Permission {
	return domain.Permission{
		ID:       row.ID,
		Resource: row.Resource,
		Action:   row.Action,
		Name:     row.Name,
	}
}

func mapPermissions(rows []permissionRow) []domain.Permission {
	out := make([]domain.Permission, len(rows))
	for i, row := range rows {
		out[i] = mapPermission(row)
	}
	return out
}
