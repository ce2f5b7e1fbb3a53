package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blog-platform/internal/session"
	"blog-platform/internal/token"
	"blog-platform/internal/web"
)

// memSessionStore is an in-memory session.Store with the same conditional
// semantics as the SQL repository, so the handler tests exercise real token
// issuance and rotation end to end.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]session.Session)}
}

func (m *memSessionStore) Create(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.DeviceID] = s
	return nil
}

func (m *memSessionStore) GetByDeviceAndIssuedAt(_ context.Context, deviceID string, issuedAt time.Time) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	if !ok || !s.LastActiveAt.Equal(issuedAt) {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (m *memSessionStore) GetByDevice(_ context.Context, deviceID string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (m *memSessionStore) Rotate(_ context.Context, deviceID string, oldIssuedAt, newIssuedAt, newExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	if !ok || !s.LastActiveAt.Equal(oldIssuedAt) {
		return session.ErrNotFound
	}
	s.LastActiveAt = newIssuedAt
	s.ExpiresAt = newExpiresAt
	m.sessions[deviceID] = s
	return nil
}

func (m *memSessionStore) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[deviceID]; !ok {
		return session.ErrNotFound
	}
	delete(m.sessions, deviceID)
	return nil
}

func (m *memSessionStore) ListByUser(_ context.Context, userID string) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessionStore) DeleteOthers(_ context.Context, userID, keepDeviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && s.DeviceID != keepDeviceID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// newAuthServer wires real token issuance, a real session manager over the
// in-memory store, and the HTTP handlers into one mux, all on a fake clock.
func newAuthServer(t *testing.T) (http.Handler, *authFixture, *testClock) {
	t.Helper()

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()

	issuer := token.NewIssuer("test-secret", 15*time.Minute, 7*24*time.Hour).WithClock(clock.Now)
	manager := session.NewManager(newMemSessionStore(), issuer, logger).WithClock(clock.Now)

	users := newFakeUsers(clock.Now)
	mail := &fakeMailer{}
	service := NewService(users, manager, mail, 24*time.Hour, logger).WithClock(clock.Now)

	handler := NewHandler(service, 7*24*time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh-token", handler.RefreshToken)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("GET /auth/me", Middleware(issuer, http.HandlerFunc(handler.Me)))
	mux.HandleFunc("POST /auth/registration", handler.Register)
	mux.HandleFunc("POST /auth/registration-confirmation", handler.ConfirmRegistration)

	fx := &authFixture{service: service, users: users, mail: mail, clock: clock}
	return mux, fx, clock
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:54321"
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == web.RefreshCookieName {
			return c
		}
	}
	t.Fatal("no refresh token cookie in response")
	return nil
}

func login(t *testing.T, handler http.Handler, loginOrEmail, password string) (string, *http.Cookie) {
	t.Helper()
	rr := postJSON(t, handler, "/auth/login", map[string]string{
		"loginOrEmail": loginOrEmail,
		"password":     password,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body accessTokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)

	return body.AccessToken, refreshCookie(t, rr)
}

func TestLoginEndpoint(t *testing.T) {
	handler, fx, _ := newAuthServer(t)
	fx.register(t, "testUser", "user@example.com", "qwerty123")

	_, cookie := login(t, handler, "testUser", "qwerty123")
	assert.True(t, cookie.HttpOnly, "refresh cookie must be HttpOnly")
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)

	rr := postJSON(t, handler, "/auth/login", map[string]string{
		"loginOrEmail": "testUser",
		"password":     "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginEndpointValidation(t *testing.T) {
	handler, _, _ := newAuthServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing password", map[string]string{"loginOrEmail": "testUser"}},
		{"short password", map[string]string{"loginOrEmail": "testUser", "password": "abc"}},
		{"unknown field", map[string]string{"loginOrEmail": "testUser", "password": "qwerty123", "extra": "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, handler, "/auth/login", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestMeEndpoint(t *testing.T) {
	handler, fx, _ := newAuthServer(t)
	fx.register(t, "testUser", "user@example.com", "qwerty123")
	access, _ := login(t, handler, "testUser", "qwerty123")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "testUser", body.Login)
	assert.Equal(t, "user@example.com", body.Email)
	assert.NotEmpty(t, body.UserID)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "missing header")
}

func TestRefreshEndpointRotatesAndRejectsReplay(t *testing.T) {
	handler, fx, clock := newAuthServer(t)
	fx.register(t, "testUser", "user@example.com", "qwerty123")
	_, oldCookie := login(t, handler, "testUser", "qwerty123")

	clock.Advance(time.Minute)

	rr := postJSON(t, handler, "/auth/refresh-token", map[string]string{}, oldCookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	newCookie := refreshCookie(t, rr)
	assert.NotEqual(t, oldCookie.Value, newCookie.Value)

	var body accessTokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)

	rr = postJSON(t, handler, "/auth/refresh-token", map[string]string{}, oldCookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "a replayed refresh token must be rejected")

	rr = postJSON(t, handler, "/auth/refresh-token", map[string]string{}, newCookie)
	assert.Equal(t, http.StatusOK, rr.Code, "the rotated token keeps working")
}

func TestRefreshEndpointWithoutCookie(t *testing.T) {
	handler, _, _ := newAuthServer(t)

	rr := postJSON(t, handler, "/auth/refresh-token", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	handler, fx, _ := newAuthServer(t)
	fx.register(t, "testUser", "user@example.com", "qwerty123")
	_, cookie := login(t, handler, "testUser", "qwerty123")

	rr := postJSON(t, handler, "/auth/logout", map[string]string{}, cookie)
	require.Equal(t, http.StatusNoContent, rr.Code)

	cleared := refreshCookie(t, rr)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0, "logout must expire the cookie")

	rr = postJSON(t, handler, "/auth/logout", map[string]string{}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "logout is single-use")

	rr = postJSON(t, handler, "/auth/refresh-token", map[string]string{}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "the session is gone after logout")
}

func TestRegistrationEndpointFlow(t *testing.T) {
	handler, fx, _ := newAuthServer(t)

	rr := postJSON(t, handler, "/auth/registration", map[string]string{
		"login":    "testUser",
		"password": "qwerty123",
		"email":    "user@example.com",
	})
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	code := fx.mail.lastConfirmation(t).code
	rr = postJSON(t, handler, "/auth/registration-confirmation", map[string]string{"code": code})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = postJSON(t, handler, "/auth/registration-confirmation", map[string]string{"code": code})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "a consumed code must be rejected")

	login(t, handler, "testUser", "qwerty123")
}

func TestRegistrationEndpointValidation(t *testing.T) {
	handler, _, _ := newAuthServer(t)

	tests := []struct {
		name  string
		login string
		email string
	}{
		{"login too long", "waytoolonglogin", "user@example.com"},
		{"login bad chars", "bad login", "user@example.com"},
		{"bad email", "testUser", "not-an-email"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, handler, "/auth/registration", map[string]string{
				"login":    tc.login,
				"password": "qwerty123",
				"email":    tc.email,
			})
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRegistrationEndpointDuplicate(t *testing.T) {
	handler, fx, _ := newAuthServer(t)
	fx.register(t, "testUser", "user@example.com", "qwerty123")

	rr := postJSON(t, handler, "/auth/registration", map[string]string{
		"login":    "testUser",
		"password": "qwerty123",
		"email":    "other@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
