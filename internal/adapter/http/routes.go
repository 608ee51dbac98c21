package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/middleware"
)

// MountRoutes attaches every endpoint to the router. Tenant management is
// admin-only; auth and the websocket feed are open to any authenticated user.
// Health probes sit outside /api/v1 and outside authentication.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Healthz)
	r.Get("/ready", h.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		// The socket is long-lived, so the request timeout covers the
		// JSON API only.
		r.Get("/ws", h.Hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
				r.Post("/change-password", h.ChangePassword)
			})

			r.Route("/tenants", func(r chi.Router) {
				r.Use(middleware.RequireRole(user.RoleAdmin))

				r.Get("/", h.ListTenants)
				r.Post("/", h.CreateTenant)
				r.Get("/by-slug/{slug}", h.GetTenantBySlug)
				r.Get("/{id}", h.GetTenant)
				r.Put("/{id}", h.UpdateTenant)
				r.Delete("/{id}", h.DeleteTenant)
				r.Get("/{id}/events", h.ListTenantEvents)

				r.Get("/{id}/settings", h.ListSettings)
				r.Get("/{id}/settings/{key}", h.GetSetting)
				r.Put("/{id}/settings/{key}", h.UpsertSetting)
				r.Delete("/{id}/settings/{key}", h.DeleteSetting)
			})
		})
	})
}
