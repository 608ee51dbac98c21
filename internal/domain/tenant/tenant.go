// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant represents one isolated customer workspace.
type Tenant struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Timezone  string         `json:"timezone"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Setting is a single named configuration value scoped to one tenant.
// The pair (TenantID, Key) is unique and acts as the upsert key.
type Setting struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateRequest holds the fields required to create a new tenant.
// Timezone and Metadata are optional and defaulted during validation.
type CreateRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Timezone string         `json:"timezone,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateRequest holds the fields that can be updated on a tenant.
// Nil fields are left untouched; an entirely empty request is a valid no-op.
type UpdateRequest struct {
	Name     *string        `json:"name,omitempty"`
	Slug     *string        `json:"slug,omitempty"`
	Timezone *string        `json:"timezone,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Empty reports whether the request carries no changes at all.
func (r *UpdateRequest) Empty() bool {
	return r.Name == nil && r.Slug == nil && r.Timezone == nil && r.Metadata == nil
}
