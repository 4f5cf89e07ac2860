// Package cache provides the byte-level storage backends behind the
// gateway's response cache: an in-process TTL store for single-instance
// deployments and a Redis store for clusters. Key derivation and response
// encoding live in the gateway; these backends only move bytes.
package cache

import (
	"context"
	"time"
)

// Cache is the backend contract. Implementations must be safe for
// concurrent use and must degrade gracefully: a backend failure surfaces
// as a miss, never as a request failure.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
