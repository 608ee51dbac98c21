// Package broadcast defines the port for pushing live events to connected
// dashboard clients.
package broadcast

import (
	"context"

	"github.com/google/uuid"
)

// Broadcaster sends real-time events to connected clients. Delivery is
// tenant-scoped: an event reaches the connections bound to tenantID and any
// system admin connections, never another tenant's.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, tenantID uuid.UUID, eventType string, payload any)
}
