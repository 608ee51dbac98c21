// Package http exposes the REST API: tenant CRUD, per-tenant settings, the
// audit trail, authentication, and health probes. Every response uses the
// uniform success/error envelope.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/atriumlabs/atrium/internal/adapter/ws"
	"github.com/atriumlabs/atrium/internal/port/eventstore"
	"github.com/atriumlabs/atrium/internal/service"
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Handlers carries the services the REST endpoints delegate to.
type Handlers struct {
	Tenants *service.TenantService
	Auth    *service.AuthService
	Events  eventstore.Store
	Hub     *ws.Hub

	// ReadyChecks gate the readiness probe; liveness never consults them.
	ReadyChecks []ReadyCheck
}

// Healthz reports process liveness only.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every dependency check and reports 503 until all pass.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.ReadyChecks))
	ready := true
	for _, c := range h.ReadyChecks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, response{Error: "not ready", Data: checks})
		return
	}
	writeData(w, http.StatusOK, checks)
}
