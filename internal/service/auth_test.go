package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atriumlabs/atrium/internal/config"
	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/middleware"
)

var testSigningSecret = []byte("test-signing-secret")

func newTestAuthService(store *mockStore) *AuthService {
	cfg := config.Auth{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}
	return NewAuthService(store, cfg, func() []byte { return testSigningSecret }, nil)
}

func seedUser(t *testing.T, store *mockStore, email, password string, role user.Role) *user.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	tenantID, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}

	created, err := store.CreateUser(context.Background(), &user.User{
		ID:           id,
		TenantID:     tenantID,
		Email:        email,
		Name:         "Test User",
		PasswordHash: string(hash),
		Role:         role,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return created
}

// craftToken signs arbitrary claims with the test secret, bypassing the
// service, to exercise claim validation paths.
func craftToken(t *testing.T, claims user.TokenClaims) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signingInput := jwtHeader + "." + base64URLEncode(payload)
	mac := hmac.New(sha256.New, testSigningSecret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64URLEncode(mac.Sum(nil))
}

// --- Login ---

func TestAuthServiceLogin(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "password123", user.RoleMember)
	svc := newTestAuthService(store)

	resp, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in response")
	}
	if resp.ExpiresIn != 900 {
		t.Fatalf("expected expires_in 900, got %d", resp.ExpiresIn)
	}
	if resp.User.ID != seeded.ID {
		t.Fatalf("response user = %s, want %s", resp.User.ID, seeded.ID)
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.UserID != seeded.ID {
		t.Fatalf("claims sub = %s, want %s", claims.UserID, seeded.ID)
	}
	if claims.TenantID != seeded.TenantID {
		t.Fatalf("claims tid = %s, want %s", claims.TenantID, seeded.TenantID)
	}
	if claims.Role != user.RoleMember {
		t.Fatalf("claims role = %s, want member", claims.Role)
	}

	if len(store.tokens) != 1 {
		t.Fatalf("expected 1 stored refresh token, got %d", len(store.tokens))
	}
	if store.tokens[0].TokenHash == resp.RefreshToken {
		t.Fatal("refresh token must be stored hashed, not in the clear")
	}
}

func TestAuthServiceLoginFailures(t *testing.T) {
	store := &mockStore{}
	seedUser(t, store, "alice@example.com", "password123", user.RoleMember)

	disabled := seedUser(t, store, "gone@example.com", "password123", user.RoleMember)
	for _, u := range store.users {
		if u.ID == disabled.ID {
			u.Enabled = false
		}
	}

	svc := newTestAuthService(store)

	tests := []struct {
		name string
		req  user.LoginRequest
	}{
		{"wrong password", user.LoginRequest{Email: "alice@example.com", Password: "wrong-password"}},
		{"unknown email", user.LoginRequest{Email: "nobody@example.com", Password: "password123"}},
		{"disabled account", user.LoginRequest{Email: "gone@example.com", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAuthServiceLoginValidation(t *testing.T) {
	svc := newTestAuthService(&mockStore{})

	_, err := svc.Login(context.Background(), user.LoginRequest{Email: "alice@example.com"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- Token validation ---

func TestAuthServiceValidateAccessToken(t *testing.T) {
	svc := newTestAuthService(&mockStore{})
	now := time.Now()
	base := user.TokenClaims{
		UserID:   uuid.New(),
		Email:    "alice@example.com",
		Role:     user.RoleMember,
		TenantID: uuid.New(),
		IssuedAt: now.Unix(),
		Expiry:   now.Add(time.Hour).Unix(),
		Audience: tokenAudience,
		Issuer:   tokenIssuer,
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := svc.ValidateAccessToken(craftToken(t, base))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.UserID != base.UserID {
			t.Fatalf("sub = %s, want %s", claims.UserID, base.UserID)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := base
		c.Expiry = now.Add(-time.Minute).Unix()
		if _, err := svc.ValidateAccessToken(craftToken(t, c)); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := base
		c.Audience = "someone-else"
		if _, err := svc.ValidateAccessToken(craftToken(t, c)); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := base
		c.Issuer = "rogue-issuer"
		if _, err := svc.ValidateAccessToken(craftToken(t, c)); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		token := craftToken(t, base)
		parts := strings.Split(token, ".")
		evil := base
		evil.Role = user.RoleAdmin
		payload, _ := json.Marshal(evil)
		forged := parts[0] + "." + base64URLEncode(payload) + "." + parts[2]
		if _, err := svc.ValidateAccessToken(forged); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for forged payload, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := svc.ValidateAccessToken("not-a-jwt"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

// --- Refresh rotation ---

func TestAuthServiceRefresh(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "password123", user.RoleMember)
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("rotation must issue a different refresh token")
	}
	if refreshed.User.ID != seeded.ID {
		t.Fatalf("refreshed user = %s, want %s", refreshed.User.ID, seeded.ID)
	}

	// The consumed token is revoked; replaying it is a credential failure.
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("replayed token: expected ErrUnauthorized, got %v", err)
	}

	// The freshly rotated token still works.
	if _, err := svc.Refresh(context.Background(), refreshed.RefreshToken); err != nil {
		t.Fatalf("rotated token should be usable: %v", err)
	}
}

func TestAuthServiceRefreshUnknownToken(t *testing.T) {
	svc := newTestAuthService(&mockStore{})

	_, err := svc.Refresh(context.Background(), "never-issued")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "password123", user.RoleMember)
	svc := newTestAuthService(store)

	raw := "stale-refresh-token"
	id, _ := uuid.NewV7()
	if err := store.StoreRefreshToken(context.Background(), &user.RefreshToken{
		ID:        id,
		TenantID:  seeded.TenantID,
		UserID:    seeded.ID,
		TokenHash: hashSHA256(raw),
		ExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("store token: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), raw); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestAuthServiceRefreshDisabledUser(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "password123", user.RoleMember)
	svc := newTestAuthService(store)

	login, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Disable after login; the stored refresh token must stop working.
	for _, u := range store.users {
		if u.ID == seeded.ID {
			u.Enabled = false
		}
	}

	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for disabled user, got %v", err)
	}
}

// --- Logout ---

func TestAuthServiceLogout(t *testing.T) {
	store := &mockStore{}
	seedUser(t, store, "alice@example.com", "password123", user.RoleMember)
	svc := newTestAuthService(store)
	ctx := middleware.SystemAdminContext(context.Background())

	login, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}

	// Logout is idempotent for revoked and unknown tokens alike.
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := svc.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("unknown token logout: %v", err)
	}
}

// --- Password management ---

func TestAuthServiceChangePassword(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "oldpassword", user.RoleMember)
	svc := newTestAuthService(store)
	ctx := middleware.SystemAdminContext(context.Background())

	if err := svc.ChangePassword(ctx, seeded.ID, "wrong-old", "newpassword1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("wrong current password: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.ChangePassword(ctx, seeded.ID, "oldpassword", "short"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short password: expected ErrValidation, got %v", err)
	}

	if err := svc.ChangePassword(ctx, seeded.ID, "oldpassword", "newpassword1"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Login(context.Background(), user.LoginRequest{Email: "alice@example.com", Password: "oldpassword"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
	if _, err := svc.Login(context.Background(), user.LoginRequest{Email: "alice@example.com", Password: "newpassword1"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}

	u, err := store.GetUserByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.MustChangePassword {
		t.Fatal("must_change_password should be cleared after a change")
	}
}

func TestAuthServiceResetPassword(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "oldpassword", user.RoleMember)
	svc := newTestAuthService(store)
	ctx := middleware.SystemAdminContext(context.Background())

	if err := svc.ResetPassword(ctx, "alice@example.com", "resetpassword"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	u, err := store.GetUserByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.MustChangePassword {
		t.Fatal("reset must force a password change at next login")
	}

	if err := svc.ResetPassword(ctx, "nobody@example.com", "resetpassword"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown email: expected ErrNotFound, got %v", err)
	}
}

// --- Registration and seeding ---

func TestAuthServiceRegister(t *testing.T) {
	store := &mockStore{}
	svc := newTestAuthService(store)
	ctx := middleware.SystemAdminContext(context.Background())
	tenantID, _ := uuid.NewV7()

	created, err := svc.Register(ctx, &user.CreateRequest{
		Email:    "bob@example.com",
		Name:     "Bob",
		Password: "password123",
		Role:     user.RoleMember,
		TenantID: tenantID,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.PasswordHash == "password123" {
		t.Fatal("password must be stored hashed")
	}
	if !created.Enabled {
		t.Fatal("new users start enabled")
	}

	_, err = svc.Register(ctx, &user.CreateRequest{
		Email:    "bob@example.com",
		Name:     "Other Bob",
		Password: "password123",
		Role:     user.RoleMember,
		TenantID: tenantID,
	})
	if !errors.Is(err, domain.ErrEmailExists) {
		t.Fatalf("duplicate email: expected ErrEmailExists, got %v", err)
	}
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc := newTestAuthService(&mockStore{})
	ctx := middleware.SystemAdminContext(context.Background())

	tests := []struct {
		name string
		req  user.CreateRequest
	}{
		{"bad email", user.CreateRequest{Email: "not-an-email", Name: "X", Password: "password123", Role: user.RoleMember}},
		{"short password", user.CreateRequest{Email: "x@example.com", Name: "X", Password: "short", Role: user.RoleMember}},
		{"bad role", user.CreateRequest{Email: "x@example.com", Name: "X", Password: "password123", Role: "superuser"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := svc.Register(ctx, &req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAuthServiceSeedDefaultAdmin(t *testing.T) {
	store := &mockStore{}
	svc := newTestAuthService(store)

	if err := svc.SeedDefaultAdmin(context.Background(), "admin@example.com", "bootstrap-pass"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(store.users) != 1 {
		t.Fatalf("expected 1 seeded user, got %d", len(store.users))
	}

	admin := store.users[0]
	if admin.Role != user.RoleAdmin {
		t.Fatalf("seeded role = %s, want admin", admin.Role)
	}
	if admin.TenantID != middleware.DefaultTenantID {
		t.Fatalf("seeded tenant = %s, want platform tenant", admin.TenantID)
	}
	if !admin.MustChangePassword {
		t.Fatal("seeded admin must change password at first login")
	}

	// Seeding again is a no-op.
	if err := svc.SeedDefaultAdmin(context.Background(), "admin@example.com", "other-pass"); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(store.users) != 1 {
		t.Fatalf("second seed must not create another user, got %d", len(store.users))
	}
}

// --- Cleanup ---

func TestAuthServiceDeleteExpiredTokens(t *testing.T) {
	store := &mockStore{}
	seeded := seedUser(t, store, "alice@example.com", "password123", user.RoleMember)

	fresh, _ := uuid.NewV7()
	stale, _ := uuid.NewV7()
	ctx := context.Background()
	_ = store.StoreRefreshToken(ctx, &user.RefreshToken{
		ID: fresh, TenantID: seeded.TenantID, UserID: seeded.ID,
		TokenHash: hashSHA256("fresh"), ExpiresAt: time.Now().Add(time.Hour),
	})
	_ = store.StoreRefreshToken(ctx, &user.RefreshToken{
		ID: stale, TenantID: seeded.TenantID, UserID: seeded.ID,
		TokenHash: hashSHA256("stale"), ExpiresAt: time.Now().Add(-time.Hour),
	})

	n, err := store.DeleteExpiredRefreshTokens(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged token, got %d", n)
	}
	if len(store.tokens) != 1 || store.tokens[0].ID != fresh {
		t.Fatal("fresh token must survive cleanup")
	}
}
