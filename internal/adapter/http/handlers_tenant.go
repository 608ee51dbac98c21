package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/event"
	"github.com/atriumlabs/atrium/internal/domain/tenant"
)

// ListTenants returns a page of tenants. Out-of-range page parameters fall
// back to the configured defaults rather than erroring.
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	tenants, pg, err := h.Tenants.List(r.Context(), page, limit)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	if tenants == nil {
		tenants = []*tenant.Tenant{}
	}
	writePage(w, tenants, &pg)
}

func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Tenants.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeDataMessage(w, http.StatusCreated, t, "tenant created")
}

func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.Tenants.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *Handlers) GetTenantBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	t, err := h.Tenants.GetBySlug(r.Context(), slug)
	if err != nil {
		writeDomainError(w, err, "Tenant not found: "+slug)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	req, ok := readJSON[tenant.UpdateRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Tenants.Update(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	writeDataMessage(w, http.StatusOK, t, "tenant updated")
}

func (h *Handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Tenants.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	writeMessage(w, http.StatusOK, "tenant deleted")
}

type upsertSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	settings, err := h.Tenants.ListSettings(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	if settings == nil {
		settings = []*tenant.Setting{}
	}
	writeData(w, http.StatusOK, settings)
}

func (h *Handlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	setting, err := h.Tenants.GetSetting(r.Context(), id, key)
	if err != nil {
		writeDomainError(w, err, settingNotFound(err, id, key))
		return
	}
	writeData(w, http.StatusOK, setting)
}

func (h *Handlers) UpsertSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	req, ok := readJSON[upsertSettingRequest](w, r)
	if !ok {
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "setting value is required")
		return
	}
	setting, err := h.Tenants.UpsertSetting(r.Context(), id, key, req.Value)
	if err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	writeDataMessage(w, http.StatusOK, setting, "setting saved")
}

// DeleteSetting is idempotent: deleting an absent key still succeeds.
func (h *Handlers) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.Tenants.DeleteSetting(r.Context(), id, key); err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}
	writeMessage(w, http.StatusOK, "setting deleted")
}

// settingNotFound picks the 404 message for setting reads, which can miss on
// either the tenant or the key.
func settingNotFound(err error, tenantID uuid.UUID, key string) string {
	if errors.Is(err, domain.ErrSettingNotFound) {
		return "Setting not found: " + key
	}
	return "Tenant not found: " + tenantID.String()
}

// auditTrail is the response shape for the tenant event history.
type auditTrail struct {
	Records []event.Record `json:"records"`
	Total   int64          `json:"total"`
}

// ListTenantEvents returns the tenant's audit trail, newest first, optionally
// filtered by event type and time window.
func (h *Handlers) ListTenantEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	filter, ok := parseEventFilter(w, r)
	if !ok {
		return
	}
	if _, err := h.Tenants.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "Tenant not found: "+id.String())
		return
	}

	records, err := h.Events.ListByTenant(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	total, err := h.Events.CountByTenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	if records == nil {
		records = []event.Record{}
	}
	writeData(w, http.StatusOK, auditTrail{Records: records, Total: total})
}

func parseEventFilter(w http.ResponseWriter, r *http.Request) (event.Filter, bool) {
	q := r.URL.Query()
	f := event.Filter{Type: event.Type(q.Get("type"))}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return f, false
		}
		f.Limit = n
	}
	if v := q.Get("after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after timestamp")
			return f, false
		}
		f.After = &ts
	}
	if v := q.Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return f, false
		}
		f.Before = &ts
	}
	return f, true
}
