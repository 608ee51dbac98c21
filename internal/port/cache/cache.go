// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TenantKey is the cache key for a tenant record looked up by id.
func TenantKey(id uuid.UUID) string {
	return "tenant.id." + id.String()
}

// TenantSlugKey is the cache key for a tenant record looked up by slug.
// NATS KV keys cannot contain '/' so keys stay dot-separated.
func TenantSlugKey(slug string) string {
	return "tenant.slug." + slug
}
