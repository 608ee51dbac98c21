// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/adapter/otel"
	"github.com/atriumlabs/atrium/internal/config"
	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/event"
	"github.com/atriumlabs/atrium/internal/domain/tenant"
	"github.com/atriumlabs/atrium/internal/port/cache"
	"github.com/atriumlabs/atrium/internal/port/database"
)

// Pagination describes one page of a list response. Field names follow the
// REST envelope contract.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

// TenantService orchestrates tenant lifecycle use cases: validation, slug
// uniqueness arbitration, event emission, and cache maintenance. All its
// methods assume an authenticated tenant context in ctx; the store rejects
// calls without one.
type TenantService struct {
	store      database.Store
	cache      cache.Cache
	cacheTTL   time.Duration
	recorder   *event.Recorder
	dispatcher *Dispatcher
	metrics    *otel.Metrics
	cfg        config.Tenants
}

// NewTenantService creates a TenantService. cache, dispatcher, and metrics
// may be nil; the corresponding side effects are then skipped.
func NewTenantService(store database.Store, c cache.Cache, cacheTTL time.Duration, dispatcher *Dispatcher, metrics *otel.Metrics, cfg config.Tenants) *TenantService {
	return &TenantService{
		store:      store,
		cache:      c,
		cacheTTL:   cacheTTL,
		recorder:   event.NewRecorder(),
		dispatcher: dispatcher,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Create validates and creates a new tenant.
//
// The slug pre-check is advisory only: two concurrent creates with the same
// slug race past it, and the database unique constraint picks exactly one
// winner. The loser's constraint violation surfaces as the same ErrSlugExists
// the pre-check would have produced.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	draft, err := tenant.ValidateCreate(req, s.cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.TenantSlugExists(ctx, draft.Slug)
	if err != nil {
		return nil, fmt.Errorf("slug pre-check: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("create tenant: slug %q: %w", draft.Slug, domain.ErrSlugExists)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate tenant id: %w", err)
	}
	draft.ID = id

	ctx, span := otel.StartTenantSpan(ctx, "create", id.String())
	defer span.End()

	created, err := s.store.CreateTenant(ctx, draft)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TenantsCreated.Add(ctx, 1)
	}
	s.emit(ctx, event.TenantCreated{
		TenantID:   created.ID,
		Name:       created.Name,
		Slug:       created.Slug,
		OccurredAt: created.CreatedAt,
	})

	return created, nil
}

// Get returns a tenant by id, consulting the cache first.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if t := s.cachedTenant(ctx, cache.TenantKey(id)); t != nil {
		return t, nil
	}

	t, err := s.store.FindTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}

	s.fillCache(ctx, t)
	return t, nil
}

// GetBySlug returns a tenant by slug, consulting the cache first.
func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	if t := s.cachedTenant(ctx, cache.TenantSlugKey(slug)); t != nil {
		return t, nil
	}

	t, err := s.store.FindTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("tenant %q: %w", slug, domain.ErrNotFound)
	}

	s.fillCache(ctx, t)
	return t, nil
}

// List returns one page of tenants ordered by creation time, plus the
// pagination envelope. Page and limit are clamped to configured bounds.
func (s *TenantService) List(ctx context.Context, page, limit int) ([]*tenant.Tenant, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}

	skip := (page - 1) * limit

	tenants, err := s.store.ListTenants(ctx, skip, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	total, err := s.store.CountTenants(ctx)
	if err != nil {
		return nil, Pagination{}, err
	}

	return tenants, Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + int64(limit) - 1) / int64(limit),
	}, nil
}

// Update applies a partial update. It emits TenantUpdated only when at least
// one field actually changed value; a no-op update skips the write entirely.
func (s *TenantService) Update(ctx context.Context, id uuid.UUID, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	current, err := s.store.FindTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}

	if err := tenant.ValidateUpdate(req); err != nil {
		return nil, err
	}

	changes := diffTenant(current, req)
	if len(changes) == 0 {
		return current, nil
	}

	if req.Slug != nil && *req.Slug != current.Slug {
		exists, err := s.store.TenantSlugExists(ctx, *req.Slug)
		if err != nil {
			return nil, fmt.Errorf("slug pre-check: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("update tenant: slug %q: %w", *req.Slug, domain.ErrSlugExists)
		}
	}

	ctx, span := otel.StartTenantSpan(ctx, "update", id.String())
	defer span.End()

	updated, err := s.store.UpdateTenant(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, current)
	if updated.Slug != current.Slug {
		s.invalidate(ctx, updated)
	}

	if s.metrics != nil {
		s.metrics.TenantsUpdated.Add(ctx, 1)
	}
	s.emit(ctx, event.TenantUpdated{
		TenantID:   updated.ID,
		Changes:    changes,
		OccurredAt: updated.UpdatedAt,
	})

	return updated, nil
}

// Delete removes a tenant and, via cascade, its settings, users, and tokens.
// Existence is confirmed first so the caller gets a clean not-found.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.FindTenant(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}

	ctx, span := otel.StartTenantSpan(ctx, "delete", id.String())
	defer span.End()

	if err := s.store.DeleteTenant(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, current)

	if s.metrics != nil {
		s.metrics.TenantsDeleted.Add(ctx, 1)
	}
	s.emit(ctx, event.TenantDeleted{
		TenantID:   id,
		Slug:       current.Slug,
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// UpsertSetting creates or replaces one tenant setting.
func (s *TenantService) UpsertSetting(ctx context.Context, tenantID uuid.UUID, key string, value json.RawMessage) (*tenant.Setting, error) {
	if err := tenant.ValidateSettingKey(key); err != nil {
		return nil, domain.NewValidationError(domain.FieldError{Field: "key", Message: "must be 1-100 characters"})
	}
	if !json.Valid(value) {
		return nil, domain.NewValidationError(domain.FieldError{Field: "value", Message: "must be valid JSON"})
	}

	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	setting, err := s.store.UpsertTenantSetting(ctx, tenantID, key, value)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SettingWrites.Add(ctx, 1)
	}
	s.emit(ctx, event.TenantSettingUpdated{
		TenantID:   tenantID,
		Key:        key,
		Value:      value,
		OccurredAt: setting.UpdatedAt,
	})

	return setting, nil
}

// GetSetting returns one setting, or ErrSettingNotFound when the key is
// absent. The tenant-existence check runs first, so an absent tenant surfaces
// as plain ErrNotFound and callers can tell the two 404s apart.
func (s *TenantService) GetSetting(ctx context.Context, tenantID uuid.UUID, key string) (*tenant.Setting, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	setting, err := s.store.FindTenantSetting(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, fmt.Errorf("%q: %w", key, domain.ErrSettingNotFound)
	}
	return setting, nil
}

// ListSettings returns all settings of a tenant ordered by key.
func (s *TenantService) ListSettings(ctx context.Context, tenantID uuid.UUID) ([]*tenant.Setting, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListTenantSettings(ctx, tenantID)
}

// DeleteSetting removes one setting. Deleting an absent key succeeds without
// an event.
func (s *TenantService) DeleteSetting(ctx context.Context, tenantID uuid.UUID, key string) error {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return err
	}

	existed, err := s.store.DeleteTenantSetting(ctx, tenantID, key)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}

	if s.metrics != nil {
		s.metrics.SettingWrites.Add(ctx, 1)
	}
	s.emit(ctx, event.TenantSettingDeleted{
		TenantID:   tenantID,
		Key:        key,
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// Events returns the domain events accumulated since the last drain.
func (s *TenantService) Events() []event.Event {
	return s.recorder.Events()
}

// DrainEvents returns accumulated events and clears the recorder.
func (s *TenantService) DrainEvents() []event.Event {
	return s.recorder.Drain()
}

// emit records ev and hands it to the dispatcher for best-effort fan-out.
func (s *TenantService) emit(ctx context.Context, ev event.Event) {
	s.recorder.Record(ev)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, ev)
	}
}

// requireTenant confirms the owning tenant exists before a settings
// operation, so absent tenants surface as a tenant not-found rather than a
// confusing empty result.
func (s *TenantService) requireTenant(ctx context.Context, id uuid.UUID) error {
	t, err := s.store.FindTenant(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// diffTenant compares current state against the requested patch and returns
// the fields that would actually change. Metadata compares by deep equality.
func diffTenant(current *tenant.Tenant, req tenant.UpdateRequest) map[string]event.FieldChange {
	changes := make(map[string]event.FieldChange)

	if req.Name != nil && *req.Name != current.Name {
		changes["name"] = event.FieldChange{From: current.Name, To: *req.Name}
	}
	if req.Slug != nil && *req.Slug != current.Slug {
		changes["slug"] = event.FieldChange{From: current.Slug, To: *req.Slug}
	}
	if req.Timezone != nil && *req.Timezone != current.Timezone {
		changes["timezone"] = event.FieldChange{From: current.Timezone, To: *req.Timezone}
	}
	if req.Metadata != nil && !reflect.DeepEqual(req.Metadata, current.Metadata) {
		changes["metadata"] = event.FieldChange{From: current.Metadata, To: req.Metadata}
	}

	return changes
}

// cachedTenant returns the cached record for key, or nil on miss or error.
func (s *TenantService) cachedTenant(ctx context.Context, key string) *tenant.Tenant {
	if s.cache == nil {
		return nil
	}

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("tenant cache read failed", "key", key, "error", err)
		return nil
	}
	if !found {
		if s.metrics != nil {
			s.metrics.CacheMisses.Add(ctx, 1)
		}
		return nil
	}

	var t tenant.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		slog.Warn("tenant cache entry corrupt, dropping", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return nil
	}

	if s.metrics != nil {
		s.metrics.CacheHits.Add(ctx, 1)
	}
	return &t
}

func (s *TenantService) fillCache(ctx context.Context, t *tenant.Tenant) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.TenantKey(t.ID), data, s.cacheTTL); err != nil {
		slog.Warn("tenant cache write failed", "tenant_id", t.ID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.TenantSlugKey(t.Slug), data, s.cacheTTL); err != nil {
		slog.Warn("tenant cache write failed", "tenant_id", t.ID, "error", err)
	}
}

// invalidate drops both cache keys of t.
func (s *TenantService) invalidate(ctx context.Context, t *tenant.Tenant) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.TenantKey(t.ID)); err != nil {
		slog.Warn("tenant cache invalidation failed", "tenant_id", t.ID, "error", err)
	}
	if err := s.cache.Delete(ctx, cache.TenantSlugKey(t.Slug)); err != nil {
		slog.Warn("tenant cache invalidation failed", "tenant_id", t.ID, "error", err)
	}
}
