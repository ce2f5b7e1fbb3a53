package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// AccessClaims are the claims embedded in a short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// RefreshClaims are the claims embedded in a refresh token. IssuedAt doubles
// as the session version marker: a refresh token is only usable while the
// session's last-active marker still equals it.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type     string `json:"typ"`
	DeviceID string `json:"deviceId"`
}

// Issuer signs and verifies both token kinds with a single HS256 secret.
// All methods are side-effect-free and safe for concurrent use.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *Issuer) IssueAccess(userID string) (string, error) {
	now := i.now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		Type: typeAccess,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// IssueRefresh signs a refresh token for one device session. issuedAt is
// truncated to whole seconds because JWT numeric dates carry second
// precision; the session store must hold the same truncated value.
func (i *Issuer) IssueRefresh(userID, deviceID string, issuedAt time.Time) (string, error) {
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.refreshTTL)),
		},
		Type:     typeRefresh,
		DeviceID: deviceID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyAccess returns the parsed claims, or nil when the token is malformed,
// expired, signed with a different key, or not an access token. It never
// returns an error; callers translate nil into Unauthorized.
func (i *Issuer) VerifyAccess(tokenString string) *AccessClaims {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid || claims.Type != typeAccess || claims.Subject == "" {
		return nil
	}
	return claims
}

// VerifyRefresh is the refresh-side counterpart of VerifyAccess.
func (i *Issuer) VerifyRefresh(tokenString string) *RefreshClaims {
	claims := &RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid || claims.Type != typeRefresh {
		return nil
	}
	if claims.Subject == "" || claims.DeviceID == "" || claims.IssuedAt == nil {
		return nil
	}
	return claims
}

func (i *Issuer) keyFunc(*jwt.Token) (any, error) {
	return i.secret, nil
}
