package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nulpointcorp/llm-router/internal/cache"
	"github.com/nulpointcorp/llm-router/internal/providers"
)

// DefaultCacheTTL bounds how long a stored response may be served.
const DefaultCacheTTL = 5 * time.Minute

// ResponseCache stores finished completions keyed by request content, in
// front of routing: a hit short-circuits the whole dispatch pipeline.
// Streaming requests are never cached, and requests whose tenant or tags
// match the exclusion list bypass the cache entirely. Backend failures
// degrade to misses.
type ResponseCache struct {
	backend    cache.Cache
	exclusions *cache.ExclusionList
	ttl        time.Duration
}

// NewResponseCache wraps a byte-level backend. exclusions may be nil; a
// non-positive ttl falls back to DefaultCacheTTL.
func NewResponseCache(backend cache.Cache, exclusions *cache.ExclusionList, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{backend: backend, exclusions: exclusions, ttl: ttl}
}

// Eligible reports whether req may be served from or stored in the cache.
func (c *ResponseCache) Eligible(req *providers.Request) bool {
	if c == nil || c.backend == nil || req == nil || req.Stream {
		return false
	}
	if c.exclusions != nil {
		values := append([]string{req.Tenant}, req.Tags...)
		if c.exclusions.MatchesAny(values...) {
			return false
		}
	}
	return true
}

// Lookup returns the stored response for an identical earlier request.
// The returned copy is marked cached; the caller owns it.
func (c *ResponseCache) Lookup(ctx context.Context, req *providers.Request) (*Response, bool) {
	if !c.Eligible(req) {
		return nil, false
	}
	data, ok := c.backend.Get(ctx, Key(req))
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

// Store saves a finished response under the request's key. The stored copy
// drops the attempt history: it describes a fresh serve, not the original
// dispatch.
func (c *ResponseCache) Store(ctx context.Context, req *providers.Request, resp *Response) error {
	if !c.Eligible(req) || resp == nil || resp.Stream != nil {
		return nil
	}
	cp := *resp
	cp.Cached = false
	cp.Attempts = nil
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("gateway: encode cached response: %w", err)
	}
	return c.backend.Set(ctx, Key(req), data, c.ttl)
}

// Key returns the deterministic SHA-256 cache key for a request. Tenant and
// routing preferences are part of the key: two tenants, or two strategies,
// never share an entry. Temperature is rounded to two decimals so float
// noise does not fragment the keyspace.
func Key(req *providers.Request) string {
	data, _ := json.Marshal(struct {
		Tenant string                 `json:"tn,omitempty"`
		Prefs  *providers.Preferences `json:"p,omitempty"`
		Temp   string                 `json:"t"`
		MaxTok int                    `json:"mt"`
		Msgs   []providers.Message    `json:"m"`
		Tools  []providers.ToolDef    `json:"tl,omitempty"`
	}{
		req.Tenant,
		req.Preferences,
		fmt.Sprintf("%.2f", req.Temperature),
		req.MaxTokens,
		req.Messages,
		req.Tools,
	})
	h := sha256.Sum256(data)
	return "cache:" + hex.EncodeToString(h[:])
}
