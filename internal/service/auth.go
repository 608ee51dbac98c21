package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atriumlabs/atrium/internal/adapter/otel"
	"github.com/atriumlabs/atrium/internal/config"
	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/middleware"
	"github.com/atriumlabs/atrium/internal/port/database"
)

const (
	tokenAudience = "atrium"
	tokenIssuer   = "atrium-core"
)

const minPasswordLen = 8

// AuthService handles authentication, JWT issuing, and refresh token
// rotation. It is the trusted component that mints tenant contexts, so its
// own store lookups run under a system-admin context: a login request has no
// tenant identity yet, and email is the only key available.
type AuthService struct {
	store   database.Store
	cfg     config.Auth
	secret  func() []byte
	metrics *otel.Metrics
}

// NewAuthService creates an authentication service. secret returns the
// current HS256 signing key; reading it per operation lets a reloaded secret
// take effect without restart. metrics may be nil.
func NewAuthService(store database.Store, cfg config.Auth, secret func() []byte, metrics *otel.Metrics) *AuthService {
	return &AuthService{
		store:   store,
		cfg:     cfg,
		secret:  secret,
		metrics: metrics,
	}
}

// Register creates a new user with a bcrypt-hashed password. The caller's
// context decides visibility; the admin CLI passes a system-admin context.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	u := &user.User{
		ID:           id,
		TenantID:     req.TenantID,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         req.Role,
		Enabled:      true,
	}

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Login authenticates a user by email and password and issues an access and
// refresh token pair. All failure modes collapse to the same unauthorized
// error so a caller cannot probe which emails exist.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrValidation)
	}

	// No tenant context exists before authentication succeeds; email is
	// globally unique and resolves the tenant.
	sysCtx := middleware.SystemAdminContext(ctx)

	u, err := s.store.GetUserByEmail(sysCtx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || !u.Enabled {
		s.countLoginFailure(ctx)
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.countLoginFailure(ctx)
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	ctx, span := otel.StartAuthSpan(ctx, "login", u.ID.String())
	defer span.End()
	sysCtx = middleware.SystemAdminContext(ctx)

	return s.issueTokens(sysCtx, u)
}

// Refresh validates a refresh token, rotates it atomically, and issues a new
// token pair. A token that was already rotated away is a reuse signal; the
// rotation fails and the caller gets the same unauthorized error as for an
// unknown token.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*user.LoginResponse, error) {
	sysCtx := middleware.SystemAdminContext(ctx)

	rt, err := s.store.FindRefreshToken(sysCtx, hashSHA256(rawToken))
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if rt == nil || rt.RevokedAt != nil || time.Now().After(rt.ExpiresAt) {
		if rt != nil && rt.RevokedAt != nil {
			slog.Warn("revoked refresh token replayed", "user_id", rt.UserID, "tenant_id", rt.TenantID)
		}
		return nil, fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
	}

	u, err := s.store.GetUserByID(sysCtx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Enabled {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrUnauthorized)
	}

	ctx, span := otel.StartAuthSpan(ctx, "refresh", u.ID.String())
	defer span.End()
	sysCtx = middleware.SystemAdminContext(ctx)

	return s.rotateTokens(sysCtx, u, rt.ID)
}

// Logout revokes the presented refresh token. Unknown tokens succeed, logout
// is idempotent.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	rt, err := s.store.FindRefreshToken(ctx, hashSHA256(rawToken))
	if err != nil {
		return fmt.Errorf("find refresh token: %w", err)
	}
	if rt == nil || rt.RevokedAt != nil {
		return nil
	}

	if err := s.store.RevokeRefreshToken(ctx, rt.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ValidateAccessToken verifies a JWT and returns its claims.
func (s *AuthService) ValidateAccessToken(tokenStr string) (*user.TokenClaims, error) {
	return s.verifyJWT(tokenStr)
}

// ChangePassword verifies the current password, then replaces it and clears
// the must-change flag. It runs in the caller's own tenant context.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpdateUserPassword(ctx, userID, string(hash), false)
}

// ResetPassword sets a new password for the user with the given email and
// forces a change at next login. Used by the admin CLI.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user %q: %w", email, domain.ErrNotFound)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpdateUserPassword(ctx, u.ID, string(hash), true)
}

// GetUser returns a user by id within the caller's context.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// ListUsers returns all users of a tenant.
func (s *AuthService) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*user.User, error) {
	return s.store.ListUsers(ctx, tenantID)
}

// SeedDefaultAdmin creates the initial platform admin if the email is not
// taken. The seeded account must change its password at first login.
func (s *AuthService) SeedDefaultAdmin(ctx context.Context, email, password string) error {
	sysCtx := middleware.SystemAdminContext(ctx)

	existing, err := s.store.GetUserByEmail(sysCtx, email)
	if err != nil {
		return fmt.Errorf("check existing admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	u, err := s.Register(sysCtx, &user.CreateRequest{
		Email:    email,
		Name:     "Platform Admin",
		Password: password,
		Role:     user.RoleAdmin,
		TenantID: middleware.DefaultTenantID,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := s.store.UpdateUserPassword(sysCtx, u.ID, u.PasswordHash, true); err != nil {
		return fmt.Errorf("set must_change_password: %w", err)
	}

	slog.Info("seeded platform admin", "email", email)
	return nil
}

// StartTokenCleanup starts a background goroutine that periodically purges
// expired refresh tokens. It stops when ctx is cancelled.
func (s *AuthService) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Cleanup spans all tenants.
		sysCtx := middleware.SystemAdminContext(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.DeleteExpiredRefreshTokens(sysCtx)
				if err != nil {
					slog.Warn("refresh token cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("purged expired refresh tokens", "count", n)
				}
			}
		}
	}()
}

// issueTokens signs an access token and stores a fresh refresh token.
func (s *AuthService) issueTokens(ctx context.Context, u *user.User) (*user.LoginResponse, error) {
	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}

	rawRefresh, rt, err := s.newRefreshToken(u)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &user.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		User:         *u,
	}, nil
}

// rotateTokens signs an access token and atomically replaces the consumed
// refresh token. A lost rotation race surfaces as unauthorized.
func (s *AuthService) rotateTokens(ctx context.Context, u *user.User, consumedID uuid.UUID) (*user.LoginResponse, error) {
	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}

	rawRefresh, rt, err := s.newRefreshToken(u)
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefreshToken(ctx, consumedID, rt); err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			slog.Warn("refresh token rotation race", "user_id", u.ID)
			return nil, fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return &user.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		User:         *u,
	}, nil
}

func (s *AuthService) newRefreshToken(u *user.User) (string, *user.RefreshToken, error) {
	raw, err := generateRandomToken(32)
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", nil, fmt.Errorf("generate token id: %w", err)
	}

	return raw, &user.RefreshToken{
		ID:        id,
		TenantID:  u.TenantID,
		UserID:    u.ID,
		TokenHash: hashSHA256(raw),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}, nil
}

func (s *AuthService) countLoginFailure(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.LoginFailures.Add(ctx, 1)
	}
}

// --- JWT implementation (HS256 with stdlib) ---

// jwtHeader is the fixed base64url-encoded header for HS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := time.Now()
	claims := user.TokenClaims{
		UserID:             u.ID,
		Email:              u.Email,
		Role:               u.Role,
		TenantID:           u.TenantID,
		MustChangePassword: u.MustChangePassword,
		IssuedAt:           now.Unix(),
		Expiry:             now.Add(s.cfg.AccessTokenTTL).Unix(),
		Audience:           tokenAudience,
		Issuer:             tokenIssuer,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)

	mac := hmac.New(sha256.New, s.secret())
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token: %w", domain.ErrUnauthorized)
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret())
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, fmt.Errorf("invalid signature: %w", domain.ErrUnauthorized)
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", domain.ErrUnauthorized)
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", domain.ErrUnauthorized)
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, fmt.Errorf("token expired: %w", domain.ErrUnauthorized)
	}
	if claims.Audience != tokenAudience {
		return nil, fmt.Errorf("invalid token audience: %w", domain.ErrUnauthorized)
	}
	if claims.Issuer != tokenIssuer {
		return nil, fmt.Errorf("invalid token issuer: %w", domain.ErrUnauthorized)
	}

	return &claims, nil
}

// --- Helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	// Add padding back
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
