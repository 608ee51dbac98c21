package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atriumlabs/atrium/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and pushes it to the clients allowed
// to see it. Event types mirror the domain event kinds (tenant.created,
// tenant.updated, tenant.deleted, tenant.setting_updated,
// tenant.setting_deleted).
func (h *Hub) BroadcastEvent(ctx context.Context, tenantID uuid.UUID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
