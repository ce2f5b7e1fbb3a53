package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"blog-platform/internal/mailer"
	"blog-platform/internal/session"
	"blog-platform/internal/user"
)

var (
	// ErrInvalidCredentials is returned for both "no such user" and "wrong
	// password"; callers never learn which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidCode covers unknown, expired, and already-used
	// confirmation/recovery codes.
	ErrInvalidCode = errors.New("invalid or expired code")
)

// bcrypt hash of a throwaway string, compared against when the login does not
// match any user so a miss costs the same as a password mismatch.
const timingDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Users is the slice of the user repository the auth flows need.
type Users interface {
	Create(ctx context.Context, u user.User) error
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (user.User, error)
	Confirm(ctx context.Context, code string) error
	RefreshConfirmationCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SetRecoveryCode(ctx context.Context, email, code string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, code, passwordHash string) error
}

// Sessions is the slice of the session manager the auth flows need.
type Sessions interface {
	Login(ctx context.Context, userID, ip, title string) (session.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Service ties credential verification, token issuance, and session tracking
// together for the externally visible auth flows.
type Service struct {
	users    Users
	sessions Sessions
	mail     mailer.Mailer
	logger   *zap.Logger
	codeTTL  time.Duration
	now      func() time.Time
}

func NewService(users Users, sessions Sessions, mail mailer.Mailer, codeTTL time.Duration, logger *zap.Logger) *Service {
	if codeTTL <= 0 {
		codeTTL = 24 * time.Hour
	}

	return &Service{
		users:    users,
		sessions: sessions,
		mail:     mail,
		logger:   logger,
		codeTTL:  codeTTL,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Login verifies the credentials and opens a new device session. The lookup
// is a case-sensitive exact match on either login or email.
func (s *Service) Login(ctx context.Context, loginOrEmail, password, ip, title string) (session.TokenPair, error) {
	u, err := s.users.GetByLoginOrEmail(ctx, loginOrEmail)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(timingDummyHash), []byte(password))
			return session.TokenPair{}, ErrInvalidCredentials
		}
		return session.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return session.TokenPair{}, ErrInvalidCredentials
	}

	return s.sessions.Login(ctx, u.ID, ip, title)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Logout(ctx, refreshToken)
}

func (s *Service) Me(ctx context.Context, userID string) (user.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Register creates the account unconfirmed and emails a single-use
// confirmation code.
func (s *Service) Register(ctx context.Context, login, email, password string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	code := uuid.NewString()

	err = s.users.Create(ctx, user.User{
		ID:                    id.String(),
		Login:                 login,
		Email:                 email,
		PasswordHash:          string(hash),
		CreatedAt:             now,
		EmailConfirmed:        false,
		ConfirmationCode:      code,
		ConfirmationExpiresAt: now.Add(s.codeTTL),
	})
	if err != nil {
		return err
	}

	s.sendConfirmation(ctx, email, code)
	return nil
}

func (s *Service) ConfirmEmail(ctx context.Context, code string) error {
	if err := s.users.Confirm(ctx, code); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	return nil
}

// ResendConfirmation replaces the pending code with a fresh one. Fails for a
// confirmed account or an unknown email.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	code := uuid.NewString()

	err := s.users.RefreshConfirmationCode(ctx, email, code, s.now().UTC().Add(s.codeTTL))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	s.sendConfirmation(ctx, email, code)
	return nil
}

// RequestPasswordRecovery sets a single-use recovery code and emails it. An
// unknown email succeeds silently so the endpoint cannot enumerate accounts.
func (s *Service) RequestPasswordRecovery(ctx context.Context, email string) error {
	code := uuid.NewString()

	err := s.users.SetRecoveryCode(ctx, email, code, s.now().UTC().Add(s.codeTTL))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.mail.SendRecovery(ctx, email, code); err != nil {
		s.logger.Warn("recovery email failed", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// SetNewPassword consumes the recovery code and replaces the password hash.
func (s *Service) SetNewPassword(ctx context.Context, code, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.ResetPassword(ctx, code, string(hash)); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	return nil
}

// sendConfirmation logs and moves on when delivery fails; the account exists
// either way and the code can be resent.
func (s *Service) sendConfirmation(ctx context.Context, email, code string) {
	if err := s.mail.SendConfirmation(ctx, email, code); err != nil {
		s.logger.Warn("confirmation email failed", zap.String("email", email), zap.Error(err))
	}
}
