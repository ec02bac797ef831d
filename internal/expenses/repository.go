package expenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/platform/httpx"
)

// Repository defines persistence operations for expenses.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Expense, error)
	Get(ctx context.Context, id int64) (Expense, error)
	Create(ctx context.Context, expense Expense) (Expense, error)
	Update(ctx context.Context, expense Expense) (Expense, error)
	Delete(ctx context.Context, id int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const expenseColumns = `id, company_id, user_id, vehicle_id, category, description, amount, currency, status, reviewed_by, reviewed_at, incurred_at, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e          Expense
		vehicle    pgtype.Int8
		reviewedBy pgtype.Int8
		reviewedAt pgtype.Timestamptz
	)
	if err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &vehicle, &e.Category, &e.Description,
		&e.Amount, &e.Currency, &e.Status, &reviewedBy, &reviewedAt, &e.IncurredAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Expense{}, err
	}
	if vehicle.Valid {
		e.VehicleID = vehicle.Int64
	}
	if reviewedBy.Valid {
		e.ReviewedBy = reviewedBy.Int64
	}
	if reviewedAt.Valid {
		e.ReviewedAt = reviewedAt.Time
	}
	return e, nil
}

func optionalRef(id int64) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func optionalStamp(t Expense) pgtype.Timestamptz {
	if t.ReviewedAt.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.ReviewedAt, Valid: true}
}

// List returns expenses matching the filters. Zero-valued filters are
// ignored, so the single query covers every listing variant.
func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE ($1 = 0 OR company_id = $1)
		  AND ($2 = 0 OR user_id = $2)
		  AND ($3 = 0 OR vehicle_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY incurred_at DESC, id DESC`,
		filters.CompanyID, filters.UserID, filters.VehicleID, string(filters.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Get fetches an expense by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, fmt.Errorf("%w: expense", httpx.ErrNotFound)
		}
		return Expense{}, err
	}
	return e, nil
}

// Create inserts an expense.
func (r *PGRepository) Create(ctx context.Context, expense Expense) (Expense, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO expenses (company_id, user_id, vehicle_id, category, description, amount, currency, status, incurred_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING `+expenseColumns,
		expense.CompanyID, expense.UserID, optionalRef(expense.VehicleID), expense.Category,
		expense.Description, expense.Amount, expense.Currency, string(expense.Status), expense.IncurredAt)
	return scanExpense(row)
}

// Update rewrites mutable expense fields, including review state.
func (r *PGRepository) Update(ctx context.Context, expense Expense) (Expense, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE expenses
		SET vehicle_id = $2, category = $3, description = $4, amount = $5, currency = $6,
		    status = $7, reviewed_by = $8, reviewed_at = $9, incurred_at = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+expenseColumns,
		expense.ID, optionalRef(expense.VehicleID), expense.Category, expense.Description,
		expense.Amount, expense.Currency, string(expense.Status),
		optionalRef(expense.ReviewedBy), optionalStamp(expense), expense.IncurredAt)
	updated, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, fmt.Errorf("%w: expense", httpx.ErrNotFound)
		}
		return Expense{}, err
	}
	return updated, nil
}

// Delete removes an expense row.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expense", httpx.ErrNotFound)
	}
	return nil
}

// CountByUser counts expenses submitted by a user.
func (r *PGRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

var _ Repository = (*PGRepository)(nil)
