// Package breaker implements per-provider three-state circuit breakers.
// A provider that fails repeatedly is cut off for a cool-down period, then
// probed with a limited number of requests before traffic fully resumes.
package breaker

import (
	"sync"
	"time"
)

// State represents the operational state of one provider's breaker.
//
//	StateClosed   — normal operation; requests pass through.
//	StateOpen     — provider is failing; requests are rejected until expiry.
//	StateHalfOpen — recovery probing; one request at a time is admitted.
type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

// String returns the metric/log label for the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Default tuning parameters, used when Config fields are zero.
const (
	DefaultFailureThreshold         = 5
	DefaultOpenDuration             = 30 * time.Second
	DefaultHalfOpenSuccessThreshold = 2
)

// Config holds breaker tuning parameters. Zero values fall back to the
// package defaults.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open.
	FailureThreshold int

	// OpenDuration is how long the breaker rejects requests after tripping,
	// before it admits recovery probes.
	OpenDuration time.Duration

	// HalfOpenSuccessThreshold is the number of consecutive successful
	// probes required to close the breaker again.
	HalfOpenSuccessThreshold int
}

func (c *Config) failureThreshold() int {
	if c.FailureThreshold > 0 {
		return c.FailureThreshold
	}
	return DefaultFailureThreshold
}

func (c *Config) openDuration() time.Duration {
	if c.OpenDuration > 0 {
		return c.OpenDuration
	}
	return DefaultOpenDuration
}

func (c *Config) probeThreshold() int {
	if c.HalfOpenSuccessThreshold > 0 {
		return c.HalfOpenSuccessThreshold
	}
	return DefaultHalfOpenSuccessThreshold
}

// providerBreaker holds per-provider breaker state. All transitions happen
// under its mutex, so they are serialized per provider.
type providerBreaker struct {
	mu sync.Mutex

	cfg Config

	state               State
	consecutiveFailures int
	openExpiry          time.Time // in open: when probing may begin
	probesRemaining     int       // in half_open: successes left before closing
	probeInFlight       bool      // in half_open: a probe has been admitted
}

// Registry manages independent circuit breakers keyed by provider name.
// Breakers are created lazily on first use. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*providerBreaker

	defaults  Config
	overrides map[string]Config
}

// NewRegistry creates a Registry with the given global defaults and optional
// per-provider overrides.
func NewRegistry(defaults Config, overrides map[string]Config) *Registry {
	return &Registry{
		breakers:  make(map[string]*providerBreaker),
		defaults:  defaults,
		overrides: overrides,
	}
}

// Admit reports whether the named provider may receive the next request.
//
//   - Closed   → true.
//   - Open     → false until the open period expires; the first call after
//     expiry transitions to HalfOpen and is admitted as the probe.
//   - HalfOpen → true only when no probe is currently in flight.
func (r *Registry) Admit(provider string) bool {
	b := r.getOrCreate(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Now().Before(b.openExpiry) {
			return false
		}
		b.state = StateHalfOpen
		b.probesRemaining = b.cfg.probeThreshold()
		b.probeInFlight = true
		return true

	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}

	return true
}

// OnResult records the outcome of an admitted request.
//
// Closed: a failure increments the consecutive-failure counter and trips the
// breaker open at the threshold; a success resets the counter. HalfOpen: a
// successful probe decrements the remaining-probe counter and closes the
// breaker when it reaches zero; a failed probe re-opens it. Results arriving
// while the breaker is open (late responses from before the trip) are
// ignored.
func (r *Registry) OnResult(provider string, success bool) {
	b := r.getOrCreate(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.failureThreshold() {
			b.trip()
		}

	case StateHalfOpen:
		b.probeInFlight = false
		if !success {
			b.trip()
			return
		}
		b.probesRemaining--
		if b.probesRemaining <= 0 {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.probesRemaining = 0
		}

	case StateOpen:
		// Ignore.
	}
}

// trip moves the breaker to open. Callers hold b.mu.
func (b *providerBreaker) trip() {
	b.state = StateOpen
	b.openExpiry = time.Now().Add(b.cfg.openDuration())
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.probesRemaining = 0
}

// State returns the provider's current state (closed for unknown providers).
func (r *Registry) State(provider string) State {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StateLabel returns "closed", "open", or "half_open" for metrics export.
func (r *Registry) StateLabel(provider string) string {
	return r.State(provider).String()
}

// Snapshot returns the state of every breaker created so far.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		b.mu.Lock()
		out[name] = b.state
		b.mu.Unlock()
	}
	return out
}

func (r *Registry) getOrCreate(provider string) *providerBreaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[provider]; ok {
		return b
	}
	cfg := r.defaults
	if o, ok := r.overrides[provider]; ok {
		cfg = o
	}
	b = &providerBreaker{state: StateClosed, cfg: cfg}
	r.breakers[provider] = b
	return b
}
