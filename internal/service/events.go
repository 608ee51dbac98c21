package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/atriumlabs/atrium/internal/adapter/otel"
	"github.com/atriumlabs/atrium/internal/domain/event"
	"github.com/atriumlabs/atrium/internal/middleware"
	"github.com/atriumlabs/atrium/internal/port/broadcast"
	"github.com/atriumlabs/atrium/internal/port/eventstore"
	"github.com/atriumlabs/atrium/internal/port/messagequeue"
	"github.com/atriumlabs/atrium/internal/resilience"
)

// dispatchTimeout bounds the queue publish for one event. Publishes run
// detached from the request, so the request context cannot cap them.
const dispatchTimeout = 10 * time.Second

// Dispatcher fans committed domain events out to the audit log, the message
// queue, and the WebSocket hub. Fan-out is best effort: the mutation has
// already committed, so failures are logged and counted, never returned to
// the caller. Callers needing guaranteed delivery drain the service recorder
// inside their own unit of work.
type Dispatcher struct {
	audit     eventstore.Store
	queue     messagequeue.Queue
	hub       broadcast.Broadcaster
	breaker   *resilience.Breaker
	publishes *semaphore.Weighted
	metrics   *otel.Metrics
}

// NewDispatcher creates a Dispatcher. maxInFlight bounds concurrent queue
// publishes; queue, hub, and metrics may be nil and are then skipped.
func NewDispatcher(audit eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, breaker *resilience.Breaker, maxInFlight int64, metrics *otel.Metrics) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 30*time.Second)
	}
	return &Dispatcher{
		audit:     audit,
		queue:     queue,
		hub:       hub,
		breaker:   breaker,
		publishes: semaphore.NewWeighted(maxInFlight),
		metrics:   metrics,
	}
}

// Dispatch records ev in the audit log and pushes it to the queue and the
// live feed. The audit append runs in the caller's tenant context; the queue
// publish runs detached so a slow broker cannot stall the request.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) {
	start := time.Now()
	ctx, span := otel.StartDispatchSpan(ctx, string(ev.Kind()), ev.Tenant().String())
	defer span.End()

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event payload marshal failed", "type", ev.Kind(), "error", err)
		return
	}

	d.appendAudit(ctx, ev, payload)
	d.publish(ctx, ev, payload)

	if d.hub != nil {
		d.hub.BroadcastEvent(ctx, ev.Tenant(), string(ev.Kind()), json.RawMessage(payload))
	}

	if d.metrics != nil {
		d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (d *Dispatcher) appendAudit(ctx context.Context, ev event.Event, payload []byte) {
	if d.audit == nil {
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		slog.Error("audit record id generation failed", "error", err)
		return
	}

	rec := &event.Record{
		ID:         id,
		TenantID:   ev.Tenant(),
		Type:       ev.Kind(),
		Payload:    payload,
		OccurredAt: ev.Time(),
	}
	if tc, ok := middleware.TenantFromContext(ctx); ok && tc.UserID != uuid.Nil {
		actor := tc.UserID
		rec.ActorID = &actor
	}

	if err := d.audit.Append(ctx, rec); err != nil {
		slog.Error("audit append failed",
			"type", ev.Kind(), "tenant_id", ev.Tenant(), "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev event.Event, payload []byte) {
	if d.queue == nil {
		return
	}

	subject := messagequeue.SubjectFor(ev.Kind())
	if subject == "" {
		return
	}

	if !d.publishes.TryAcquire(1) {
		slog.Warn("publish concurrency limit reached, dropping event",
			"subject", subject, "tenant_id", ev.Tenant())
		d.countPublishFailure(ctx)
		return
	}

	// Detach from the request but keep its values (request id) for log
	// correlation on the consumer side.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)

	go func() {
		defer d.publishes.Release(1)
		defer cancel()

		err := d.breaker.Execute(func() error {
			return d.queue.Publish(pubCtx, subject, payload)
		})
		if err != nil {
			slog.Error("event publish failed",
				"subject", subject, "tenant_id", ev.Tenant(), "error", err)
			d.countPublishFailure(pubCtx)
			return
		}
		if d.metrics != nil {
			d.metrics.EventsPublished.Add(pubCtx, 1)
		}
	}()
}

func (d *Dispatcher) countPublishFailure(ctx context.Context) {
	if d.metrics != nil {
		d.metrics.PublishFailures.Add(ctx, 1)
	}
}

// QueueState reports the publish breaker state for readiness endpoints.
func (d *Dispatcher) QueueState() string {
	if d.breaker == nil {
		return "closed"
	}
	return d.breaker.State()
}

// Events returns the audit trail for a tenant, newest first.
func (d *Dispatcher) Events(ctx context.Context, tenantID uuid.UUID, filter event.Filter) ([]event.Record, error) {
	return d.audit.ListByTenant(ctx, tenantID, filter)
}

// CountEvents returns the number of audit records for a tenant.
func (d *Dispatcher) CountEvents(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return d.audit.CountByTenant(ctx, tenantID)
}
