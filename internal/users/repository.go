package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
	"github.com/fleetledger/fleetledger/internal/rbac"
)

// Repository defines persistence operations for user management.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user User, passwordHash string) (User, error)
	Update(ctx context.Context, user User) (User, error)
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
	Purge(ctx context.Context, id int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, role, company_id, is_active, last_active_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		user       User
		role       string
		companyID  pgtype.Int8
		lastActive pgtype.Timestamptz
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &companyID, &user.IsActive, &lastActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role = rbac.PrimaryRole(role)
	if companyID.Valid {
		user.CompanyID = companyID.Int64
	}
	if lastActive.Valid {
		user.LastActiveAt = lastActive.Time
	}
	return user, nil
}

func optionalCompany(id int64) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

// List returns users of a company, or everyone when companyID is zero.
func (r *PGRepository) List(ctx context.Context, companyID int64) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY name`
	args := []any{}
	if companyID != 0 {
		query = `SELECT ` + userColumns + ` FROM users WHERE company_id = $1 ORDER BY name`
		args = append(args, companyID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

// Get fetches a user by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: user", httpx.ErrNotFound)
		}
		return User{}, err
	}
	return user, nil
}

// Create inserts a new account.
func (r *PGRepository) Create(ctx context.Context, user User, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, company_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		RETURNING `+userColumns,
		user.Email, user.Name, passwordHash, string(user.Role), optionalCompany(user.CompanyID))
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, fmt.Errorf("%w: email already registered", httpx.ErrConflict)
		}
		return User{}, err
	}
	return created, nil
}

// Update rewrites profile fields and the primary role.
func (r *PGRepository) Update(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET email = $2, name = $3, role = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Email, user.Name, string(user.Role))
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: user", httpx.ErrNotFound)
		}
		return User{}, err
	}
	return updated, nil
}

// SetPassword replaces the stored credential hash.
func (r *PGRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user", httpx.ErrNotFound)
	}
	return nil
}

// SetActive flips the activation status.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user", httpx.ErrNotFound)
	}
	return nil
}

// Purge hard-deletes the account row.
func (r *PGRepository) Purge(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user", httpx.ErrNotFound)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
