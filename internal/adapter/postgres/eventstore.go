package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atriumlabs/atrium/internal/domain/event"
)

// EventStore implements eventstore.Store on the append-only tenant_events
// table. Rows are tenant-scoped, so reads go through the same session layer
// as the rest of the store.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// eventColumns is the SELECT column list for tenant_events queries.
const eventColumns = `id, tenant_id, event_type, payload, actor_id, occurred_at`

func scanEventRecord(row scannable, rec *event.Record) error {
	return row.Scan(&rec.ID, &rec.TenantID, &rec.Type, &rec.Payload, &rec.ActorID, &rec.OccurredAt)
}

// Append inserts a new audit record.
func (s *EventStore) Append(ctx context.Context, rec *event.Record) error {
	return withSession(ctx, s.pool, func(q querier) error {
		_, err := q.Exec(ctx,
			`INSERT INTO tenant_events (id, tenant_id, event_type, payload, actor_id, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.TenantID, rec.Type, rec.Payload, rec.ActorID, rec.OccurredAt)
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
}

// ListByTenant returns audit records for the tenant, newest first, applying
// the optional type and time bounds from filter.
func (s *EventStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter event.Filter) ([]event.Record, error) {
	query := `SELECT ` + eventColumns + ` FROM tenant_events WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND event_type = $` + strconv.Itoa(len(args))
	}
	if filter.After != nil {
		args = append(args, *filter.After)
		query += ` AND occurred_at > $` + strconv.Itoa(len(args))
	}
	if filter.Before != nil {
		args = append(args, *filter.Before)
		query += ` AND occurred_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY occurred_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	var records []event.Record
	err := withSession(ctx, s.pool, func(q querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var rec event.Record
			if err := scanEventRecord(rows, &rec); err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountByTenant returns the number of audit records for the tenant.
func (s *EventStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := withSession(ctx, s.pool, func(q querier) error {
		if err := q.QueryRow(ctx,
			`SELECT COUNT(*) FROM tenant_events WHERE tenant_id = $1`, tenantID).Scan(&count); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		return nil
	})
	return count, err
}
