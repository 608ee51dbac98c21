// Package eventstore defines the port interface for the append-only tenant
// audit trail.
package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/domain/event"
)

// Store is the port interface for appending and listing audit records.
// The tenant_events table is tenant-aware, so reads are additionally scoped
// by row-level security.
type Store interface {
	// Append persists a new audit record.
	Append(ctx context.Context, rec *event.Record) error

	// ListByTenant returns audit records for the given tenant, newest first,
	// filtered by rec type and time bounds when set.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filter event.Filter) ([]event.Record, error)

	// CountByTenant returns the number of audit records for the tenant.
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}
