package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "atrium"

// Metrics holds all tenant platform metric instruments.
type Metrics struct {
	TenantsCreated  metric.Int64Counter
	TenantsUpdated  metric.Int64Counter
	TenantsDeleted  metric.Int64Counter
	SettingWrites   metric.Int64Counter
	EventsPublished metric.Int64Counter
	PublishFailures metric.Int64Counter
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	LoginFailures   metric.Int64Counter

	DispatchDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TenantsCreated, err = meter.Int64Counter("atrium.tenants.created",
		metric.WithDescription("Number of tenants created"))
	if err != nil {
		return nil, err
	}

	m.TenantsUpdated, err = meter.Int64Counter("atrium.tenants.updated",
		metric.WithDescription("Number of tenant updates"))
	if err != nil {
		return nil, err
	}

	m.TenantsDeleted, err = meter.Int64Counter("atrium.tenants.deleted",
		metric.WithDescription("Number of tenants deleted"))
	if err != nil {
		return nil, err
	}

	m.SettingWrites, err = meter.Int64Counter("atrium.settings.writes",
		metric.WithDescription("Number of tenant setting upserts and deletes"))
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("atrium.events.published",
		metric.WithDescription("Number of tenant events published to the queue"))
	if err != nil {
		return nil, err
	}

	m.PublishFailures, err = meter.Int64Counter("atrium.events.publish_failures",
		metric.WithDescription("Number of failed queue publishes"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("atrium.cache.hits",
		metric.WithDescription("Tenant cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("atrium.cache.misses",
		metric.WithDescription("Tenant cache misses"))
	if err != nil {
		return nil, err
	}

	m.LoginFailures, err = meter.Int64Counter("atrium.auth.login_failures",
		metric.WithDescription("Number of rejected login attempts"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("atrium.events.dispatch_seconds",
		metric.WithDescription("Event fan-out duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
