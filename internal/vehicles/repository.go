package vehicles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// Repository defines persistence operations for vehicles.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]Vehicle, error)
	Get(ctx context.Context, id int64) (Vehicle, error)
	Create(ctx context.Context, vehicle Vehicle) (Vehicle, error)
	Update(ctx context.Context, vehicle Vehicle) (Vehicle, error)
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const vehicleColumns = `id, company_id, plate_number, make, model, year, assigned_driver_id, is_active, created_at, updated_at`

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var (
		v      Vehicle
		driver pgtype.Int8
	)
	if err := row.Scan(&v.ID, &v.CompanyID, &v.PlateNumber, &v.Make, &v.Model, &v.Year, &driver, &v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Vehicle{}, err
	}
	if driver.Valid {
		v.AssignedDriverID = driver.Int64
	}
	return v, nil
}

func optionalDriver(id int64) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

// List returns vehicles of a company, or all when companyID is zero.
func (r *PGRepository) List(ctx context.Context, companyID int64) ([]Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY plate_number`
	args := []any{}
	if companyID != 0 {
		query = `SELECT ` + vehicleColumns + ` FROM vehicles WHERE company_id = $1 ORDER BY plate_number`
		args = append(args, companyID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// Get fetches a vehicle by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Vehicle, error) {
	v, err := scanVehicle(r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, fmt.Errorf("%w: vehicle", httpx.ErrNotFound)
		}
		return Vehicle{}, err
	}
	return v, nil
}

// Create inserts a vehicle.
func (r *PGRepository) Create(ctx context.Context, vehicle Vehicle) (Vehicle, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO vehicles (company_id, plate_number, make, model, year, assigned_driver_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		RETURNING `+vehicleColumns,
		vehicle.CompanyID, vehicle.PlateNumber, vehicle.Make, vehicle.Model, vehicle.Year, optionalDriver(vehicle.AssignedDriverID))
	created, err := scanVehicle(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Vehicle{}, fmt.Errorf("%w: plate number already registered", httpx.ErrConflict)
		}
		return Vehicle{}, err
	}
	return created, nil
}

// Update rewrites mutable vehicle fields.
func (r *PGRepository) Update(ctx context.Context, vehicle Vehicle) (Vehicle, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE vehicles
		SET plate_number = $2, make = $3, model = $4, year = $5, assigned_driver_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+vehicleColumns,
		vehicle.ID, vehicle.PlateNumber, vehicle.Make, vehicle.Model, vehicle.Year, optionalDriver(vehicle.AssignedDriverID))
	updated, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, fmt.Errorf("%w: vehicle", httpx.ErrNotFound)
		}
		return Vehicle{}, err
	}
	return updated, nil
}

// Delete removes a vehicle row.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle", httpx.ErrNotFound)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
