// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/domain/tenant"
	"github.com/atriumlabs/atrium/internal/domain/user"
)

// Store is the port interface for database operations. Every method requires
// an active tenant context on ctx; implementations fail fast with
// domain.ErrInvalidOperation when it is missing, and the database row-level
// security policies enforce isolation underneath.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error)
	FindTenant(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	FindTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, skip, take int) ([]*tenant.Tenant, error)
	CountTenants(ctx context.Context) (int64, error)
	UpdateTenant(ctx context.Context, id uuid.UUID, patch tenant.UpdateRequest) (*tenant.Tenant, error)
	DeleteTenant(ctx context.Context, id uuid.UUID) error
	TenantSlugExists(ctx context.Context, slug string) (bool, error)

	// Tenant settings
	UpsertTenantSetting(ctx context.Context, tenantID uuid.UUID, key string, value json.RawMessage) (*tenant.Setting, error)
	FindTenantSetting(ctx context.Context, tenantID uuid.UUID, key string) (*tenant.Setting, error)
	ListTenantSettings(ctx context.Context, tenantID uuid.UUID) ([]*tenant.Setting, error)
	DeleteTenantSetting(ctx context.Context, tenantID uuid.UUID, key string) (bool, error)

	// Users
	CreateUser(ctx context.Context, u *user.User) (*user.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*user.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string, mustChange bool) error

	// Refresh tokens
	StoreRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error
	// RotateRefreshToken revokes the old token and stores its replacement in
	// one transaction so a crash cannot leave both tokens live.
	RotateRefreshToken(ctx context.Context, revokeID uuid.UUID, fresh *user.RefreshToken) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)

	// Health
	Ping(ctx context.Context) error
}
