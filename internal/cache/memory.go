package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// cleanupEvery is the background eviction interval.
	cleanupEvery = time.Minute
	// fallbackTTL applies when a caller passes a non-positive TTL.
	fallbackTTL = time.Hour
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process cache with per-entry TTL. Expired entries
// are dropped lazily on read and swept periodically in the background.
// Use it for local development and single-instance deployments; replicas
// that must share responses need RedisCache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry

	done chan struct{}
}

// NewMemoryCache starts the eviction loop. It stops when ctx is cancelled
// or Close is called.
func NewMemoryCache(ctx context.Context) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]entry),
		done:  make(chan struct{}),
	}
	go c.cleanup(ctx)
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		// Re-check before deleting: a concurrent Set may have refreshed it.
		if cur, ok := c.items[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.data, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = fallbackTTL
	}
	c.mu.Lock()
	c.items[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the eviction loop.
func (c *MemoryCache) Close() {
	close(c.done)
}

func (c *MemoryCache) cleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) evictExpired() {
	now := time.Now()

	c.mu.Lock()
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}
