package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.168.1.10:54321",
			want:       "192.168.1.10",
		},
		{
			name:       "x-forwarded-for wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.10",
			want:       "192.168.1.10",
		},
		{
			name: "nothing known",
			want: "unknown",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}

func TestErrorWritesJSONBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusTeapot, "nope")

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "nope", body["error"])
}

func TestRefreshCookieRoundTrip(t *testing.T) {
	rr := httptest.NewRecorder()
	SetRefreshCookie(rr, "token-value", 7*24*time.Hour)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, RefreshCookieName, c.Name)
	assert.Equal(t, "token-value", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
	req.AddCookie(c)
	got, ok := ReadRefreshToken(req)
	require.True(t, ok)
	assert.Equal(t, "token-value", got)

	rr = httptest.NewRecorder()
	ClearRefreshCookie(rr)
	cookies = rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestReadRefreshTokenMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
	_, ok := ReadRefreshToken(req)
	assert.False(t, ok)
}
