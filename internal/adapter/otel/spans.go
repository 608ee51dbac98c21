package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "atrium"

// StartTenantSpan starts a span for a tenant lifecycle operation.
func StartTenantSpan(ctx context.Context, op, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenant."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartDispatchSpan starts a span for fanning out a tenant event.
func StartDispatchSpan(ctx context.Context, eventType, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartAuthSpan starts a span for an authentication operation. User identity
// goes in as the opaque id, never the email.
func StartAuthSpan(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "auth."+op,
		trace.WithAttributes(
			attribute.String("user.id", userID),
		),
	)
}
