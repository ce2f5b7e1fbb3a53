package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound covers both "no such session" and "session already rotated":
// the two are indistinguishable by design, so a stale token cannot probe
// which one it hit.
var ErrNotFound = errors.New("session not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (device_id, user_id, last_active_at, ip, title, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.DeviceID, s.UserID, s.LastActiveAt.UTC(), s.IP, s.Title, s.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByDeviceAndIssuedAt finds the session matching both the device and the
// presented token's iat. A miss means the token was never issued here or has
// already been rotated.
func (r *Repository) GetByDeviceAndIssuedAt(ctx context.Context, deviceID string, issuedAt time.Time) (Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT device_id, user_id, last_active_at, ip, title, expires_at
		FROM sessions
		WHERE device_id = $1 AND last_active_at = $2 AND expires_at > NOW()
	`, deviceID, issuedAt.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("query session by device and iat: %w", err)
	}

	return s, nil
}

func (r *Repository) GetByDevice(ctx context.Context, deviceID string) (Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT device_id, user_id, last_active_at, ip, title, expires_at
		FROM sessions
		WHERE device_id = $1 AND expires_at > NOW()
	`, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("query session by device: %w", err)
	}

	return s, nil
}

// Rotate replaces the session's last-active marker in a single conditional
// update. When two refresh calls race on the same token, exactly one matches
// the old marker; the loser sees zero rows and gets ErrNotFound.
func (r *Repository) Rotate(ctx context.Context, deviceID string, oldIssuedAt, newIssuedAt, newExpiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET last_active_at = $3, expires_at = $4
		WHERE device_id = $1 AND last_active_at = $2
	`, deviceID, oldIssuedAt.UTC(), newIssuedAt.UTC(), newExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE device_id = $1
	`, deviceID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	sessions := make([]Session, 0)
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT device_id, user_id, last_active_at, ip, title, expires_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY last_active_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}

	return sessions, nil
}

func (r *Repository) DeleteOthers(ctx context.Context, userID, keepDeviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1 AND device_id <> $2
	`, userID, keepDeviceID)
	if err != nil {
		return fmt.Errorf("delete other sessions: %w", err)
	}

	return nil
}

// DeleteExpired sweeps sessions past their absolute expiry. Expired rows are
// already invisible to every read; the sweep only reclaims storage.
func (r *Repository) DeleteExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT device_id
			FROM sessions
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM sessions s
		USING stale
		WHERE s.device_id = stale.device_id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}

	return affected, nil
}
