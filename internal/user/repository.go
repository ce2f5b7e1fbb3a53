package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrLoginTaken = errors.New("login already taken")
	ErrEmailTaken = errors.New("email already taken")
)

const uniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, login, email, password_hash, email_confirmed, confirmation_code, confirmation_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Login, u.Email, u.PasswordHash, u.EmailConfirmed, u.ConfirmationCode, u.ConfirmationExpiresAt.UTC(), u.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "users_login_key":
				return ErrLoginTaken
			case "users_email_key":
				return ErrEmailTaken
			}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	return r.getWhere(ctx, `id = $1`, id)
}

// GetByLoginOrEmail matches either column exactly, case-sensitive.
func (r *Repository) GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (User, error) {
	return r.getWhere(ctx, `login = $1 OR email = $1`, loginOrEmail)
}

func (r *Repository) getWhere(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		SELECT id, login, email, password_hash, created_at,
		       email_confirmed, confirmation_code, confirmation_expires_at,
		       recovery_code, recovery_expires_at
		FROM users
		WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return u, nil
}

// Confirm consumes a confirmation code. The update matches only an unexpired,
// unused code, so expiry, reuse, and unknown codes all land in ErrNotFound.
func (r *Repository) Confirm(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email_confirmed = TRUE, confirmation_code = ''
		WHERE confirmation_code = $1 AND confirmation_code <> ''
		  AND NOT email_confirmed AND confirmation_expires_at > NOW()
	`, code)
	if err != nil {
		return fmt.Errorf("confirm user: %w", err)
	}

	return requireAffected(res)
}

// RefreshConfirmationCode replaces the pending code for a still-unconfirmed
// account. Resending for a confirmed or unknown email is ErrNotFound.
func (r *Repository) RefreshConfirmationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET confirmation_code = $2, confirmation_expires_at = $3
		WHERE email = $1 AND NOT email_confirmed
	`, email, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("refresh confirmation code: %w", err)
	}

	return requireAffected(res)
}

func (r *Repository) SetRecoveryCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET recovery_code = $2, recovery_expires_at = $3
		WHERE email = $1
	`, email, code, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set recovery code: %w", err)
	}

	return requireAffected(res)
}

// ResetPassword consumes a recovery code, setting the new hash and clearing
// the code in the same conditional update.
func (r *Repository) ResetPassword(ctx context.Context, code, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, recovery_code = NULL, recovery_expires_at = NULL
		WHERE recovery_code = $1 AND recovery_expires_at > NOW()
	`, code, passwordHash)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
