package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetledger/fleetledger/internal/platform/db"
)

// AssignmentsRepository provides PostgreSQL backed persistence for role
// assignments. Every authorization-facing read applies the visibility
// predicate in SQL: is_active AND (expires_at IS NULL OR expires_at > now).
type AssignmentsRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentsRepository constructs a repository.
func NewAssignmentsRepository(pool *pgxpool.Pool) *AssignmentsRepository {
	return &AssignmentsRepository{pool: pool}
}

const assignmentColumns = `id, user_id, role_id, granted_by, granted_at, expires_at, is_active`

func scanAssignment(row pgx.Row) (RoleAssignment, error) {
	var (
		a         RoleAssignment
		expiresAt pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.GrantedBy, &a.GrantedAt, &expiresAt, &a.IsActive); err != nil {
		return RoleAssignment{}, err
	}
	if expiresAt.Valid {
		a.ExpiresAt = expiresAt.Time
	}
	return a, nil
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// Create inserts an assignment. A duplicate active (user, role) pair maps
// to ErrDuplicateGrant via the partial unique index.
func (r *AssignmentsRepository) Create(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO role_assignments (user_id, role_id, granted_by, granted_at, expires_at, is_active)
		VALUES ($1, $2, $3, NOW(), $4, TRUE)
		RETURNING `+assignmentColumns,
		a.UserID, a.RoleID, a.GrantedBy, optionalTime(a.ExpiresAt))
	created, err := scanAssignment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return RoleAssignment{}, ErrDuplicateGrant
		}
		return RoleAssignment{}, err
	}
	return created, nil
}

// ReplaceAll deactivates every prior assignment for the user and inserts
// the new set in one transaction.
func (r *AssignmentsRepository) ReplaceAll(ctx context.Context, userID int64, assignments []RoleAssignment) ([]RoleAssignment, error) {
	var created []RoleAssignment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE role_assignments SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
			return err
		}
		for _, a := range assignments {
			row := tx.QueryRow(ctx, `
				INSERT INTO role_assignments (user_id, role_id, granted_by, granted_at, expires_at, is_active)
				VALUES ($1, $2, $3, NOW(), $4, TRUE)
				RETURNING `+assignmentColumns,
				userID, a.RoleID, a.GrantedBy, optionalTime(a.ExpiresAt))
			inserted, err := scanAssignment(row)
			if err != nil {
				return err
			}
			created = append(created, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetActive fetches the live assignment for a (user, role) pair.
func (r *AssignmentsRepository) GetActive(ctx context.Context, userID, roleID int64, now time.Time) (RoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 AND role_id = $2 AND is_active AND (expires_at IS NULL OR expires_at > $3)`,
		userID, roleID, now)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, ErrAssignmentNotFound
		}
		return RoleAssignment{}, err
	}
	return a, nil
}

// Deactivate revokes the live assignment for a (user, role) pair. The row
// stays behind for history queries.
func (r *AssignmentsRepository) Deactivate(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_assignments SET is_active = FALSE
		WHERE user_id = $1 AND role_id = $2 AND is_active`,
		userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// ListActiveFor returns the user's visible assignments.
func (r *AssignmentsRepository) ListActiveFor(ctx context.Context, userID int64, now time.Time) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ListHistoryFor returns every assignment row for a user regardless of
// visibility, for audit and history views only.
func (r *AssignmentsRepository) ListHistoryFor(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+` FROM role_assignments
		WHERE user_id = $1 ORDER BY granted_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// DeleteForUser hard-removes all assignment rows for a user. Used by the
// user purge path only.
func (r *AssignmentsRepository) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_assignments WHERE user_id = $1`, userID)
	return err
}
