package auth

import (
	"context"
	"net/http"
	"strings"

	"blog-platform/internal/token"
	"blog-platform/internal/web"
)

type claimsKey struct{}

// Claims is the authenticated identity threaded through the request context
// by Middleware.
type Claims struct {
	UserID string
}

// ClaimsFromContext returns the claims Middleware attached, if any.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}

// Middleware guards a route with a Bearer access token. Verification never
// errors out of the issuer; any failure is a plain 401.
func Middleware(tokens *token.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			web.Error(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			web.Error(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims := tokens.VerifyAccess(strings.TrimSpace(parts[1]))
		if claims == nil {
			web.Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, Claims{UserID: claims.Subject})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
