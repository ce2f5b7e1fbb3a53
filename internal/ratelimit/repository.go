package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository stores one row per recorded request. Rows are only ever read in
// aggregate (count within the trailing window) and are swept once they age
// out of the window.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CountSince(ctx context.Context, ip, route string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM api_requests
		WHERE ip = $1 AND route = $2 AND occurred_at > $3
	`, ip, route, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("count api requests: %w", err)
	}

	return count, nil
}

func (r *Repository) Record(ctx context.Context, ip, route string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_requests (ip, route, occurred_at)
		VALUES ($1, $2, $3)
	`, ip, route, at.UTC())
	if err != nil {
		return fmt.Errorf("insert api request: %w", err)
	}

	return nil
}

func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM api_requests
			WHERE occurred_at < $1
			ORDER BY occurred_at ASC
			LIMIT $2
		)
		DELETE FROM api_requests a
		USING stale
		WHERE a.id = stale.id
	`, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale api requests: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale api requests rows affected: %w", err)
	}

	return affected, nil
}
