// Package ratelimit implements per-tenant request limits over fixed
// 60-second windows. The in-memory Limiter is the default; RedisLimiter
// provides the same decision semantics across multiple gateway instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// Window is the fixed rate-limit window length.
	Window = time.Minute
	// staleAfter is the age past which an idle window entry is swept.
	staleAfter = 2 * time.Minute
	// sweepEvery is the background sweep interval.
	sweepEvery = time.Minute
)

// Decision is the outcome of a rate-limit check. RetryAfterMs is set only
// on rejection: the remaining time until the current window resets.
type Decision struct {
	Allowed      bool
	RetryAfterMs int64
}

// entry tracks one tenant's current window. Mutated only under its own lock.
type entry struct {
	mu          sync.Mutex
	requests    int
	tokens      int64
	windowStart time.Time
}

// Limiter is an in-memory fixed-window rate limiter keyed by tenant. The
// window is anchored at the first request after expiry. A background sweep
// drops entries idle for more than two windows; Close stops it.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry

	requestsPerMinute int
	tokensPerMinute   int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLimiter creates a Limiter and starts its background sweep.
// requestsPerMinute must be > 0; tokensPerMinute is recorded per window but
// not enforced.
func NewLimiter(requestsPerMinute int, tokensPerMinute int64) *Limiter {
	l := &Limiter{
		entries:           make(map[string]*entry),
		requestsPerMinute: requestsPerMinute,
		tokensPerMinute:   tokensPerMinute,
		done:              make(chan struct{}),
	}
	l.wg.Add(1)
	go l.sweep()
	return l
}

// Check decides whether the keyed caller may proceed. The first request
// after window expiry resets the window and is always allowed. The ctx
// parameter exists for interface compatibility with RedisLimiter and is
// unused here.
func (l *Limiter) Check(_ context.Context, key string) Decision {
	e := l.getOrCreate(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.windowStart.IsZero() || now.Sub(e.windowStart) >= Window {
		e.windowStart = now
		e.requests = 1
		e.tokens = 0
		return Decision{Allowed: true}
	}

	if e.requests >= l.requestsPerMinute {
		retry := Window - now.Sub(e.windowStart)
		return Decision{Allowed: false, RetryAfterMs: retry.Milliseconds()}
	}

	e.requests++
	return Decision{Allowed: true}
}

// RecordTokens adds n to the key's current window token total. The total is
// informational: it is exposed through Usage but does not gate Check.
func (l *Limiter) RecordTokens(_ context.Context, key string, n int64) {
	e := l.getOrCreate(key)
	e.mu.Lock()
	e.tokens += n
	e.mu.Unlock()
}

// Usage returns the key's current window counters. ok is false when the key
// has no entry.
func (l *Limiter) Usage(key string) (requests int, tokens int64, ok bool) {
	l.mu.RLock()
	e := l.entries[key]
	l.mu.RUnlock()
	if e == nil {
		return 0, 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests, e.tokens, true
}

// Close stops the background sweep and waits for it to exit.
func (l *Limiter) Close() {
	close(l.done)
	l.wg.Wait()
}

func (l *Limiter) sweep() {
	defer l.wg.Done()
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweepOnce(time.Now())
		case <-l.done:
			return
		}
	}
}

// sweepOnce removes entries whose window started more than staleAfter ago
// and returns the number removed.
func (l *Limiter) sweepOnce(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		e.mu.Lock()
		stale := now.Sub(e.windowStart) > staleAfter
		e.mu.Unlock()
		if stale {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) getOrCreate(key string) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	e = &entry{}
	l.entries[key] = e
	return e
}
