package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atriumlabs/atrium/internal/domain/tenant"
)

// settingColumns is the SELECT column list for tenant_settings queries.
const settingColumns = `id, tenant_id, key, value, created_at, updated_at`

func scanSetting(row scannable) (*tenant.Setting, error) {
	var st tenant.Setting
	if err := row.Scan(&st.ID, &st.TenantID, &st.Key, &st.Value, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertTenantSetting inserts the setting or, when the (tenant_id, key) pair
// already exists, replaces its value. The generated id is only used on the
// insert path; an update keeps the existing row id and created_at.
func (s *Store) UpsertTenantSetting(ctx context.Context, tenantID uuid.UUID, key string, value json.RawMessage) (*tenant.Setting, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("upsert setting %q: new id: %w", key, err)
	}

	var st *tenant.Setting
	err = withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`INSERT INTO tenant_settings (id, tenant_id, key, value)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (tenant_id, key)
			 DO UPDATE SET value = EXCLUDED.value, updated_at = now()
			 RETURNING `+settingColumns,
			id, tenantID, key, value)

		var err error
		st, err = scanSetting(row)
		if err != nil {
			return fmt.Errorf("upsert setting %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// FindTenantSetting returns the setting for (tenantID, key), or (nil, nil)
// when the key is not set.
func (s *Store) FindTenantSetting(ctx context.Context, tenantID uuid.UUID, key string) (*tenant.Setting, error) {
	var found *tenant.Setting
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`SELECT `+settingColumns+` FROM tenant_settings
			 WHERE tenant_id = $1 AND key = $2`, tenantID, key)

		st, err := scanSetting(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find setting %q: %w", key, err)
		}
		found = st
		return nil
	})
	return found, err
}

// ListTenantSettings returns all settings for the tenant ordered by key.
func (s *Store) ListTenantSettings(ctx context.Context, tenantID uuid.UUID) ([]*tenant.Setting, error) {
	var settings []*tenant.Setting
	err := withSession(ctx, s.pool, func(q querier) error {
		rows, err := q.Query(ctx,
			`SELECT `+settingColumns+` FROM tenant_settings
			 WHERE tenant_id = $1 ORDER BY key`, tenantID)
		if err != nil {
			return fmt.Errorf("list settings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			st, err := scanSetting(rows)
			if err != nil {
				return fmt.Errorf("scan setting: %w", err)
			}
			settings = append(settings, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// DeleteTenantSetting removes the setting and reports whether a row existed.
// Deleting an absent key is not an error.
func (s *Store) DeleteTenantSetting(ctx context.Context, tenantID uuid.UUID, key string) (bool, error) {
	var existed bool
	err := withSession(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx,
			`DELETE FROM tenant_settings WHERE tenant_id = $1 AND key = $2`, tenantID, key)
		if err != nil {
			return fmt.Errorf("delete setting %q: %w", key, err)
		}
		existed = tag.RowsAffected() > 0
		return nil
	})
	return existed, err
}
