package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RolesRepository provides PostgreSQL backed persistence for roles.
type RolesRepository struct {
	pool *pgxpool.Pool
}

// NewRolesRepository constructs a repository.
func NewRolesRepository(pool *pgxpool.Pool) *RolesRepository {
	return &RolesRepository{pool: pool}
}

const roleColumns = `id, name, label, description, permissions, is_system, company_id, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role      Role
		perms     []string
		companyID pgtype.Int8
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Label, &role.Description, &perms, &role.IsSystem, &companyID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Permissions = make([]Permission, len(perms))
	for i, p := range perms {
		role.Permissions[i] = Permission(p)
	}
	if companyID.Valid {
		role.CompanyID = companyID.Int64
	}
	return role, nil
}

func permStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func optionalID(id int64) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a role. A (name, company) collision maps to ErrDuplicateRole.
func (r *RolesRepository) Create(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, label, description, permissions, is_system, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+roleColumns,
		role.Name, role.Label, role.Description, permStrings(role.Permissions), role.IsSystem, optionalID(role.CompanyID))
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return created, nil
}

// Get fetches a role by ID.
func (r *RolesRepository) Get(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListVisible returns system roles plus roles of companyID. A zero
// companyID returns everything (the super admin view).
func (r *RolesRepository) ListVisible(ctx context.Context, companyID int64) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY is_system DESC, name`
	args := []any{}
	if companyID != 0 {
		query = `SELECT ` + roleColumns + ` FROM roles WHERE is_system OR company_id = $1 ORDER BY is_system DESC, name`
		args = append(args, companyID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Update rewrites the mutable fields of a role.
func (r *RolesRepository) Update(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, label = $3, description = $4, permissions = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Label, role.Description, permStrings(role.Permissions))
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicateRole
		}
		return Role{}, err
	}
	return updated, nil
}

// Delete removes a role. When cascade is set, assignments referencing the
// role are removed first inside the same transaction.
func (r *RolesRepository) Delete(ctx context.Context, id int64, cascade bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if cascade {
		if _, err := tx.Exec(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, id); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return tx.Commit(ctx)
}

// ActiveAssignmentCount counts live assignments referencing the role,
// applying the standard visibility predicate.
func (r *RolesRepository) ActiveAssignmentCount(ctx context.Context, roleID int64, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM role_assignments
		WHERE role_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)`,
		roleID, now).Scan(&count)
	return count, err
}
