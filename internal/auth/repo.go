package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/rbac"
	"github.com/fleetledger/fleetledger/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	TouchLastActive(ctx context.Context, id int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, role, company_id, is_active, last_active_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		user       User
		role       string
		companyID  pgtype.Int8
		lastActive pgtype.Timestamptz
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role, &companyID, &user.IsActive, &lastActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Role = rbac.PrimaryRole(role)
	if companyID.Valid {
		user.CompanyID = companyID.Int64
	}
	if lastActive.Valid {
		user.LastActiveAt = lastActive.Time
	}
	return &user, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// TouchLastActive updates the account's last-active timestamp.
func (r *PGRepository) TouchLastActive(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = NOW() WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
