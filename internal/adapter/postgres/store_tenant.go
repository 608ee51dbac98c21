package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/tenant"
)

// tenantColumns is the SELECT column list for tenants queries.
const tenantColumns = `id, name, slug, timezone, metadata, created_at, updated_at`

// scanTenant scans one tenants row, decoding the metadata document.
func scanTenant(row scannable) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var metadataJSON []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Timezone, &metadataJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

// CreateTenant inserts a new tenant row. The unique constraint on slug is the
// source of truth for slug collisions, including racing creates.
func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create tenant: encode metadata: %w", err)
	}

	var created *tenant.Tenant
	err = withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`INSERT INTO tenants (id, name, slug, timezone, metadata)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+tenantColumns,
			t.ID, t.Name, t.Slug, t.Timezone, metadataJSON)

		created, err = scanTenant(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create tenant: slug %q: %w", t.Slug, domain.ErrSlugExists)
			}
			return fmt.Errorf("create tenant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FindTenant returns the tenant with the given id, or (nil, nil) when no
// visible row exists. Absence is not an error at this layer.
func (s *Store) FindTenant(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	var found *tenant.Tenant
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)

		t, err := scanTenant(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find tenant %s: %w", id, err)
		}
		found = t
		return nil
	})
	return found, err
}

// FindTenantBySlug returns the tenant with the given slug, or (nil, nil).
func (s *Store) FindTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	var found *tenant.Tenant
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)

		t, err := scanTenant(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find tenant by slug %q: %w", slug, err)
		}
		found = t
		return nil
	})
	return found, err
}

// ListTenants returns a page of tenants ordered by creation time ascending.
// The id tiebreak keeps the order stable for equal timestamps.
func (s *Store) ListTenants(ctx context.Context, skip, take int) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	err := withSession(ctx, s.pool, func(q querier) error {
		rows, err := q.Query(ctx,
			`SELECT `+tenantColumns+` FROM tenants
			 ORDER BY created_at ASC, id ASC
			 LIMIT $1 OFFSET $2`, take, skip)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTenant(rows)
			if err != nil {
				return fmt.Errorf("scan tenant: %w", err)
			}
			tenants = append(tenants, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// CountTenants returns the number of visible tenant rows.
func (s *Store) CountTenants(ctx context.Context) (int64, error) {
	var count int64
	err := withSession(ctx, s.pool, func(q querier) error {
		if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
			return fmt.Errorf("count tenants: %w", err)
		}
		return nil
	})
	return count, err
}

// UpdateTenant applies the non-nil fields of patch and returns the updated
// row. COALESCE keeps unset columns untouched so partial updates stay a
// single statement.
func (s *Store) UpdateTenant(ctx context.Context, id uuid.UUID, patch tenant.UpdateRequest) (*tenant.Tenant, error) {
	var metadataJSON []byte
	if patch.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("update tenant: encode metadata: %w", err)
		}
	}

	var updated *tenant.Tenant
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`UPDATE tenants SET
			     name = COALESCE($2, name),
			     slug = COALESCE($3, slug),
			     timezone = COALESCE($4, timezone),
			     metadata = COALESCE($5, metadata),
			     updated_at = now()
			 WHERE id = $1
			 RETURNING `+tenantColumns,
			id, patch.Name, patch.Slug, patch.Timezone, metadataJSON)

		var err error
		updated, err = scanTenant(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("update tenant %s: slug: %w", id, domain.ErrSlugExists)
			}
			return notFoundWrap(err, "update tenant %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTenant removes the tenant row; child rows cascade at the schema
// level. Deleting an unknown id returns domain.ErrNotFound.
func (s *Store) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	return withSession(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		return execExpectOne(tag, err, "delete tenant %s", id)
	})
}

// TenantSlugExists reports whether a tenant with the given slug exists.
// Advisory only: the caller still has to handle the unique violation from a
// concurrent create.
func (s *Store) TenantSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := withSession(ctx, s.pool, func(q querier) error {
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1)`, slug).Scan(&exists); err != nil {
			return fmt.Errorf("tenant slug exists %q: %w", slug, err)
		}
		return nil
	})
	return exists, err
}
