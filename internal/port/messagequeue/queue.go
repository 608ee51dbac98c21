// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"

	"github.com/atriumlabs/atrium/internal/domain/event"
)

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the tenant lifecycle stream. Downstream consumers
// (billing, provisioning, analytics) subscribe to SubjectTenantsAll.
const (
	SubjectTenantCreated        = "tenants.created"
	SubjectTenantUpdated        = "tenants.updated"
	SubjectTenantDeleted        = "tenants.deleted"
	SubjectTenantSettingUpdated = "tenants.settings.updated"
	SubjectTenantSettingDeleted = "tenants.settings.deleted"

	// SubjectTenantsAll is the wildcard covering every tenant subject.
	SubjectTenantsAll = "tenants.>"
)

// SubjectFor maps a domain event type to its queue subject. Unknown types
// return an empty subject; callers skip publishing those.
func SubjectFor(t event.Type) string {
	switch t {
	case event.TypeTenantCreated:
		return SubjectTenantCreated
	case event.TypeTenantUpdated:
		return SubjectTenantUpdated
	case event.TypeTenantDeleted:
		return SubjectTenantDeleted
	case event.TypeTenantSettingUpdated:
		return SubjectTenantSettingUpdated
	case event.TypeTenantSettingDeleted:
		return SubjectTenantSettingDeleted
	default:
		return ""
	}
}
