package postgres

import (
	"context"
	"database/sql"

	"credserver/internal/model"
	"credserver/internal/repository"
)

// RefreshEventPostgres is a PostgreSQL implementation of repository.RefreshEventRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type RefreshEventPostgres struct {
	db *sql.DB
}

// NewRefreshEventPostgres creates a new RefreshEventPostgres repository.
func NewRefreshEventPostgres(db *sql.DB) *RefreshEventPostgres {
	return &RefreshEventPostgres{db: db}
}

var _ repository.RefreshEventRepository = (*RefreshEventPostgres)(nil)

// Create inserts a new event row.
func (r *RefreshEventPostgres) Create(ctx context.Context, ev *model.RefreshEvent) error {
	const q = `
		INSERT INTO refresh_events (id, status, error, expiry_date, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q,
		ev.ID,
		string(ev.Status),
		ev.Error,
		ev.ExpiryDate,
		ev.DurationMs,
		ev.CreatedAt,
	)
	return err
}

// List returns events using LIMIT/OFFSET pagination and a total count.
func (r *RefreshEventPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.RefreshEvent], error) {
	const qCount = `SELECT COUNT(*) FROM refresh_events`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, status, error, expiry_date, duration_ms, created_at
		FROM refresh_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.RefreshEvent, 0)
	for rows.Next() {
		var (
			ev     model.RefreshEvent
			status string
		)
		if err := rows.Scan(
			&ev.ID,
			&status,
			&ev.Error,
			&ev.ExpiryDate,
			&ev.DurationMs,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.Status = model.RefreshStatus(status)
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.RefreshEvent]{
		Items: items,
		Total: total,
	}, nil
}
