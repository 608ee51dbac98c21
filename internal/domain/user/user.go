// Package user defines the user domain model for authentication and authorization.
package user

import (
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// Role represents the authorization level of a user.
type Role string

const (
	// RoleAdmin marks platform operators. Requests authenticated for an
	// admin run with the system-admin tenant context, which bypasses
	// row-level tenant filtering.
	RoleAdmin Role = "admin"
	// RoleMember is a regular user bound to exactly one tenant.
	RoleMember Role = "member"
)

// ValidRoles is the set of all valid user roles.
var ValidRoles = map[Role]bool{
	RoleAdmin:  true,
	RoleMember: true,
}

// User represents a registered user within a tenant. Users are themselves
// tenant-aware rows and subject to row-level security.
type User struct {
	ID                 uuid.UUID `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"-"` // never serialized
	Role               Role      `json:"role"`
	Enabled            bool      `json:"enabled"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Password string    `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	Role     Role      `json:"role"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if !ValidRoles[r.Role] {
		return errors.New("invalid role: must be admin or member")
	}
	return nil
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // response field, not a hardcoded secret
	RefreshToken string `json:"refresh_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresIn    int    `json:"expires_in"`    // seconds until access token expires
	User         User   `json:"user"`
}

// TokenClaims contains the JWT payload fields. The tenant id and role are
// the trusted inputs from which the auth middleware builds the tenant
// context; they are never taken from request bodies or headers.
type TokenClaims struct {
	UserID             uuid.UUID `json:"sub"`
	Email              string    `json:"email"`
	Role               Role      `json:"role"`
	TenantID           uuid.UUID `json:"tid"`
	MustChangePassword bool      `json:"must_change_password,omitempty"`
	IssuedAt           int64     `json:"iat"`
	Expiry             int64     `json:"exp"`
	Audience           string    `json:"aud"`
	Issuer             string    `json:"iss"`
}

// RefreshToken represents a stored refresh token. Rows carry the owning
// tenant id so the refresh_tokens table participates in row-level security.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	UserID    uuid.UUID  `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
