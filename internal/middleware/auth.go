package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/logger"
)

type authUserCtxKey struct{}

// TokenValidator verifies an access token and returns its claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*user.TokenClaims, error)
}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":              true,
	"/ready":               true,
	"/api/v1/auth/login":   true,
	"/api/v1/auth/refresh": true,
}

// passwordChangeExempt paths are allowed even when MustChangePassword is set.
var passwordChangeExempt = map[string]bool{
	"/api/v1/auth/change-password": true,
	"/api/v1/auth/logout":          true,
	"/api/v1/auth/me":              true,
}

// Auth returns middleware that validates the bearer JWT and establishes the
// tenant context for the request. This is the single place where end-user
// input becomes a TenantContext; everything downstream, including the
// database session variables, trusts what is set here.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "authorization required")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			if claims.MustChangePassword && !passwordChangeExempt[r.URL.Path] {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"success":false,"error":"password change required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(contextFromClaims(r.Context(), claims)))
		})
	}
}

// bearerToken extracts the credential from the Authorization header, or from
// the token query parameter for WebSocket upgrades, where browsers cannot
// set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token := strings.TrimPrefix(h, "Bearer ")
		if token == h {
			return ""
		}
		return token
	}
	if r.URL.Path == "/api/v1/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

// contextFromClaims builds the per-request identity: the authenticated user,
// the tenant context the database session layer projects, and the tenant id
// for log correlation. Admin claims get a system-admin context with no
// tenant binding; TenantScope may narrow it later.
func contextFromClaims(ctx context.Context, claims *user.TokenClaims) context.Context {
	u := &user.User{
		ID:                 claims.UserID,
		TenantID:           claims.TenantID,
		Email:              claims.Email,
		Role:               claims.Role,
		Enabled:            true,
		MustChangePassword: claims.MustChangePassword,
	}
	ctx = context.WithValue(ctx, authUserCtxKey{}, u)

	tc := TenantContext{
		TenantID:      claims.TenantID,
		IsSystemAdmin: claims.Role == user.RoleAdmin,
		UserID:        claims.UserID,
	}
	ctx = WithTenantContext(ctx, tc)

	return logger.WithTenantID(ctx, claims.TenantID.String())
}

// UserFromContext returns the authenticated user from the request context.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(authUserCtxKey{}).(*user.User)
	return u
}

// WithUser stores an authenticated user on the context. Used by tests that
// exercise handlers below the auth middleware.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, authUserCtxKey{}, u)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
