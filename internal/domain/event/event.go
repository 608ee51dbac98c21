// Package event defines tenant lifecycle domain events and their in-memory
// collection point.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of tenant event.
type Type string

const (
	TypeTenantCreated        Type = "tenant.created"
	TypeTenantUpdated        Type = "tenant.updated"
	TypeTenantDeleted        Type = "tenant.deleted"
	TypeTenantSettingUpdated Type = "tenant.setting_updated"
	TypeTenantSettingDeleted Type = "tenant.setting_deleted"
)

// Event is implemented by all tenant domain events.
type Event interface {
	// Kind returns the event type.
	Kind() Type
	// Tenant returns the id of the tenant the event belongs to.
	Tenant() uuid.UUID
	// Time returns when the event occurred.
	Time() time.Time
}

// TenantCreated is emitted after a tenant is successfully created.
type TenantCreated struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e TenantCreated) Kind() Type        { return TypeTenantCreated }
func (e TenantCreated) Tenant() uuid.UUID { return e.TenantID }
func (e TenantCreated) Time() time.Time   { return e.OccurredAt }

// FieldChange records one field's previous and new value.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// TenantUpdated is emitted only when at least one field actually changed value.
type TenantUpdated struct {
	TenantID   uuid.UUID              `json:"tenant_id"`
	Changes    map[string]FieldChange `json:"changes"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e TenantUpdated) Kind() Type        { return TypeTenantUpdated }
func (e TenantUpdated) Tenant() uuid.UUID { return e.TenantID }
func (e TenantUpdated) Time() time.Time   { return e.OccurredAt }

// TenantDeleted is emitted after a tenant and its child rows are removed.
type TenantDeleted struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Slug       string    `json:"slug"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e TenantDeleted) Kind() Type        { return TypeTenantDeleted }
func (e TenantDeleted) Tenant() uuid.UUID { return e.TenantID }
func (e TenantDeleted) Time() time.Time   { return e.OccurredAt }

// TenantSettingUpdated is emitted on every setting upsert.
type TenantSettingUpdated struct {
	TenantID   uuid.UUID       `json:"tenant_id"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e TenantSettingUpdated) Kind() Type        { return TypeTenantSettingUpdated }
func (e TenantSettingUpdated) Tenant() uuid.UUID { return e.TenantID }
func (e TenantSettingUpdated) Time() time.Time   { return e.OccurredAt }

// TenantSettingDeleted is emitted only when an existing setting row was
// actually removed; deleting an absent key produces no event.
type TenantSettingDeleted struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e TenantSettingDeleted) Kind() Type        { return TypeTenantSettingDeleted }
func (e TenantSettingDeleted) Tenant() uuid.UUID { return e.TenantID }
func (e TenantSettingDeleted) Time() time.Time   { return e.OccurredAt }

// Record is one persisted audit-trail entry. The payload is the marshaled
// domain event; the actor is the user id from the tenant context, when known.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Filter controls which audit records are listed.
type Filter struct {
	Type   Type       `json:"type,omitempty"`
	After  *time.Time `json:"after,omitempty"`
	Before *time.Time `json:"before,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}
