package user

import "time"

// User is the account record the auth flows operate on. The confirmation and
// recovery fields are single-use: each code is cleared by the conditional
// update that consumes it, so presenting it twice fails.
type User struct {
	ID           string    `db:"id"`
	Login        string    `db:"login"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`

	EmailConfirmed        bool      `db:"email_confirmed"`
	ConfirmationCode      string    `db:"confirmation_code"`
	ConfirmationExpiresAt time.Time `db:"confirmation_expires_at"`

	RecoveryCode      *string    `db:"recovery_code"`
	RecoveryExpiresAt *time.Time `db:"recovery_expires_at"`
}
