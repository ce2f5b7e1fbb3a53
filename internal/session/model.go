package session

import "time"

// Session is one logged-in device. LastActiveAt mirrors the iat claim of the
// refresh token currently valid for this device; rotation replaces it in
// place, so a pre-rotation token no longer matches any row.
type Session struct {
	DeviceID     string    `db:"device_id" json:"deviceId"`
	UserID       string    `db:"user_id" json:"-"`
	LastActiveAt time.Time `db:"last_active_at" json:"lastActiveDate"`
	IP           string    `db:"ip" json:"ip"`
	Title        string    `db:"title" json:"title"`
	ExpiresAt    time.Time `db:"expires_at" json:"-"`
}

// TokenPair is what a successful login or refresh hands back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	DeviceID     string
}
