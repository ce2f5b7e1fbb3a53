package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blog-platform/internal/token"
)

var (
	// ErrInvalidRefreshToken covers every way a presented refresh token can be
	// unusable: malformed, expired, tampered, already rotated, or logged out.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrForbidden means the caller tried to revoke another user's device.
	ErrForbidden = errors.New("session belongs to another user")
)

// Store is the slice of the session repository the manager needs. It exists
// so tests can substitute an in-memory implementation.
type Store interface {
	Create(ctx context.Context, s Session) error
	GetByDeviceAndIssuedAt(ctx context.Context, deviceID string, issuedAt time.Time) (Session, error)
	GetByDevice(ctx context.Context, deviceID string) (Session, error)
	Rotate(ctx context.Context, deviceID string, oldIssuedAt, newIssuedAt, newExpiresAt time.Time) error
	Delete(ctx context.Context, deviceID string) error
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	DeleteOthers(ctx context.Context, userID, keepDeviceID string) error
}

// Manager owns the per-device session state machine: login creates, refresh
// rotates, logout and revocation delete. It holds no locks; rotation
// correctness rests entirely on the store's conditional update.
type Manager struct {
	store  Store
	tokens *token.Issuer
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, tokens *token.Issuer, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Login issues a token pair and persists a new session under a fresh device
// id. Repeated logins never deduplicate: each call is an independent device.
func (m *Manager) Login(ctx context.Context, userID, ip, title string) (TokenPair, error) {
	deviceID, err := uuid.NewV7()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate device id: %w", err)
	}

	issuedAt := m.now().UTC().Truncate(time.Second)

	access, err := m.tokens.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := m.tokens.IssueRefresh(userID, deviceID.String(), issuedAt)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	err = m.store.Create(ctx, Session{
		DeviceID:     deviceID.String(),
		UserID:       userID,
		LastActiveAt: issuedAt,
		IP:           ip,
		Title:        title,
		ExpiresAt:    issuedAt.Add(m.tokens.RefreshTTL()),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, DeviceID: deviceID.String()}, nil
}

// Refresh rotates the presented token. Presenting the same token again
// afterward fails: its iat no longer matches the stored session. Of two
// concurrent calls with the same token, the conditional update lets exactly
// one through; the other surfaces ErrInvalidRefreshToken.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims := m.tokens.VerifyRefresh(refreshToken)
	if claims == nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	issuedAt := claims.IssuedAt.Time.UTC()

	if _, err := m.store.GetByDeviceAndIssuedAt(ctx, claims.DeviceID, issuedAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			m.logger.Info("refresh token rejected",
				zap.String("device_id", claims.DeviceID),
				zap.String("user_id", claims.Subject))
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	newIssuedAt := m.now().UTC().Truncate(time.Second)
	if !newIssuedAt.After(issuedAt) {
		// A refresh within the same second must still move the marker,
		// otherwise the old token would stay valid.
		newIssuedAt = issuedAt.Add(time.Second)
	}

	access, err := m.tokens.IssueAccess(claims.Subject)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := m.tokens.IssueRefresh(claims.Subject, claims.DeviceID, newIssuedAt)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	err = m.store.Rotate(ctx, claims.DeviceID, issuedAt, newIssuedAt, newIssuedAt.Add(m.tokens.RefreshTTL()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, DeviceID: claims.DeviceID}, nil
}

func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	current, err := m.verifyActive(ctx, refreshToken)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, current.DeviceID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}

	return nil
}

// List returns every active session of the presenting user.
func (m *Manager) List(ctx context.Context, refreshToken string) ([]Session, error) {
	current, err := m.verifyActive(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return m.store.ListByUser(ctx, current.UserID)
}

// RevokeDevice deletes the target session if it belongs to the presenting
// user. A guessed device id of another user yields ErrForbidden, never a
// deletion.
func (m *Manager) RevokeDevice(ctx context.Context, refreshToken, targetDeviceID string) error {
	current, err := m.verifyActive(ctx, refreshToken)
	if err != nil {
		return err
	}

	target, err := m.store.GetByDevice(ctx, targetDeviceID)
	if err != nil {
		return err
	}
	if target.UserID != current.UserID {
		return ErrForbidden
	}

	if err := m.store.Delete(ctx, targetDeviceID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	return nil
}

// RevokeOthers deletes every session of the presenting user except the
// presenting one, which stays usable.
func (m *Manager) RevokeOthers(ctx context.Context, refreshToken string) error {
	current, err := m.verifyActive(ctx, refreshToken)
	if err != nil {
		return err
	}

	return m.store.DeleteOthers(ctx, current.UserID, current.DeviceID)
}

// verifyActive checks both the token signature/expiry and that the session it
// names is still the live one for its device.
func (m *Manager) verifyActive(ctx context.Context, refreshToken string) (Session, error) {
	claims := m.tokens.VerifyRefresh(refreshToken)
	if claims == nil {
		return Session{}, ErrInvalidRefreshToken
	}

	current, err := m.store.GetByDeviceAndIssuedAt(ctx, claims.DeviceID, claims.IssuedAt.Time.UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, err
	}

	return current, nil
}
