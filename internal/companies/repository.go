package companies

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/platform/db"
	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// Repository defines persistence operations for companies.
type Repository interface {
	List(ctx context.Context) ([]Company, error)
	Get(ctx context.Context, id int64) (Company, error)
	CreateWithAdmin(ctx context.Context, company Company, admin AdminSeed) (Company, int64, error)
	Update(ctx context.Context, company Company) (Company, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const companyColumns = `id, name, email, phone, address, is_active, created_at, updated_at`

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns all companies.
func (r *PGRepository) List(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Get fetches a company by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, fmt.Errorf("%w: company", httpx.ErrNotFound)
		}
		return Company{}, err
	}
	return c, nil
}

// CreateWithAdmin inserts the company and its first admin inside one
// transaction: both rows commit together or neither does.
func (r *PGRepository) CreateWithAdmin(ctx context.Context, company Company, admin AdminSeed) (Company, int64, error) {
	var (
		created Company
		adminID int64
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO companies (name, email, phone, address, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
			RETURNING `+companyColumns,
			company.Name, company.Email, company.Phone, company.Address)
		var err error
		created, err = scanCompany(row)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO users (email, name, password_hash, role, company_id, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, 'admin', $4, TRUE, NOW(), NOW())
			RETURNING id`,
			admin.Email, admin.Name, admin.PasswordHash, created.ID).Scan(&adminID)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Company{}, 0, fmt.Errorf("%w: company or admin email already exists", httpx.ErrConflict)
		}
		return Company{}, 0, err
	}
	return created, adminID, nil
}

// Update rewrites the mutable fields of a company.
func (r *PGRepository) Update(ctx context.Context, company Company) (Company, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE companies
		SET name = $2, email = $3, phone = $4, address = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+companyColumns,
		company.ID, company.Name, company.Email, company.Phone, company.Address, company.IsActive)
	updated, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, fmt.Errorf("%w: company", httpx.ErrNotFound)
		}
		return Company{}, err
	}
	return updated, nil
}

var _ Repository = (*PGRepository)(nil)
