package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and queries audit entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TimelineFilters narrows timeline queries.
type TimelineFilters struct {
	CompanyID int64
	ActorID   int64
	Module    string
	Action    string
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends an entry. Rows are never updated afterwards.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (request_id, actor_id, actor_role, company_id, action, module, reference, detail, success, status, ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.RequestID, entry.ActorID, entry.ActorRole, optionalCompany(entry.CompanyID),
		entry.Action, entry.Module, entry.Reference, entry.Detail,
		entry.Success, entry.Status, entry.IP, entry.UserAgent, entry.Occurred)
	return err
}

func optionalCompany(id int64) pgtype.Int8 {
	if id == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

// Timeline returns entries matching the filters, newest first.
func (r *PGRepository) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, actor_id, actor_role, company_id, action, module, reference, detail, success, status, ip, user_agent, occurred_at
		FROM audit_logs
		WHERE ($1::bigint = 0 OR company_id = $1)
		  AND ($2::bigint = 0 OR actor_id = $2)
		  AND ($3 = '' OR module = $3)
		  AND ($4 = '' OR action = $4)
		  AND ($5::timestamptz IS NULL OR occurred_at >= $5)
		  AND ($6::timestamptz IS NULL OR occurred_at <= $6)
		ORDER BY occurred_at DESC
		OFFSET $7 LIMIT $8`,
		filters.CompanyID, filters.ActorID, filters.Module, filters.Action,
		optionalTime(filters.From), optionalTime(filters.To), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry     Entry
		companyID pgtype.Int8
	)
	if err := row.Scan(&entry.ID, &entry.RequestID, &entry.ActorID, &entry.ActorRole, &companyID,
		&entry.Action, &entry.Module, &entry.Reference, &entry.Detail,
		&entry.Success, &entry.Status, &entry.IP, &entry.UserAgent, &entry.Occurred); err != nil {
		return Entry{}, err
	}
	if companyID.Valid {
		entry.CompanyID = companyID.Int64
	}
	return entry, nil
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// DeleteOlderThan removes entries past the retention window.
func (r *PGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
