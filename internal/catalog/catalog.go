// Package catalog holds the provider/model inventory and the online
// reliability statistics the router scores against. The inventory is loaded
// once from configuration and is immutable for the process lifetime; the
// reliability tracker is updated by the gateway after every dispatch.
package catalog

import (
	"fmt"
	"sort"
)

// Model tiers, ordered by declared quality.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierEconomy  Tier = "economy"
)

// Capability names a declared model capability. Free-form strings are
// accepted in configuration; these constants cover the ones routing scores.
const (
	CapReasoning   = "reasoning"
	CapCoding      = "coding"
	CapLongContext = "long_context"
	CapVision      = "vision"
	CapTools       = "tools"
)

// Model describes one routable model. Immutable after load.
type Model struct {
	Provider        string
	Name            string
	Tier            Tier
	Capabilities    []string
	CostPer1KInput  float64
	CostPer1KOutput float64
	LatencyP50Ms    int
	LatencyP95Ms    int
	ContextWindow   int
	Enabled         bool
}

// HasCapability reports whether the model declares cap.
func (m *Model) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Provider describes one upstream provider entry in the inventory.
type Provider struct {
	Name    string
	Enabled bool
	Weight  float64
	Models  []Model
}

// Query is the input to an eligibility filter pass: the caller's routing
// preferences plus the complexity score computed for the request.
type Query struct {
	Complexity           float64
	PreferredProviders   []string
	ExcludeProviders     []string
	RequiredCapabilities []string
	MaxLatencyMs         int
}

// Catalog is the immutable model inventory.
type Catalog struct {
	providers []Provider
	byName    map[string]int // provider name -> index into providers

	// simpleThreshold is the complexity below which premium-tier models are
	// gated out unless their provider is explicitly preferred.
	simpleThreshold float64
}

// New validates the inventory and builds a catalog. simpleThreshold is the
// routing.complexityThresholds.simple config value.
func New(provs []Provider, simpleThreshold float64) (*Catalog, error) {
	if len(provs) == 0 {
		return nil, fmt.Errorf("catalog: no providers configured")
	}
	c := &Catalog{
		providers:       make([]Provider, 0, len(provs)),
		byName:          make(map[string]int, len(provs)),
		simpleThreshold: simpleThreshold,
	}
	for _, p := range provs {
		if p.Name == "" {
			return nil, fmt.Errorf("catalog: provider with empty name")
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate provider %q", p.Name)
		}
		if p.Weight <= 0 {
			p.Weight = 1.0
		}
		for i := range p.Models {
			m := &p.Models[i]
			m.Provider = p.Name
			if m.Name == "" {
				return nil, fmt.Errorf("catalog: provider %q has a model with empty name", p.Name)
			}
			switch m.Tier {
			case TierPremium, TierStandard, TierEconomy:
			default:
				return nil, fmt.Errorf("catalog: model %s/%s: invalid tier %q (valid: premium, standard, economy)", p.Name, m.Name, m.Tier)
			}
		}
		// Deterministic model order within a provider.
		sort.Slice(p.Models, func(i, j int) bool { return p.Models[i].Name < p.Models[j].Name })
		c.byName[p.Name] = len(c.providers)
		c.providers = append(c.providers, p)
	}
	// Deterministic provider order.
	sort.Slice(c.providers, func(i, j int) bool { return c.providers[i].Name < c.providers[j].Name })
	for i, p := range c.providers {
		c.byName[p.Name] = i
	}
	return c, nil
}

// Eligible returns the models that survive the filter for q, in
// deterministic (provider, model) order:
//
//  1. the provider is enabled and not excluded, the model is enabled;
//  2. the model declares every required capability;
//  3. latencyP95 fits the caller's latency budget, when one is set;
//  4. below the simple-complexity threshold, premium-tier models are
//     dropped unless their provider was explicitly preferred.
//
// When preferred providers are named and at least one preferred model
// survives, only preferred models are returned.
func (c *Catalog) Eligible(q Query) []Model {
	excluded := toSet(q.ExcludeProviders)
	preferred := toSet(q.PreferredProviders)

	var preferredHits, rest []Model
	for _, p := range c.providers {
		if !p.Enabled || excluded[p.Name] {
			continue
		}
		isPreferred := preferred[p.Name]
		for _, m := range p.Models {
			if !m.Enabled {
				continue
			}
			if !hasAll(&m, q.RequiredCapabilities) {
				continue
			}
			if q.MaxLatencyMs > 0 && m.LatencyP95Ms > q.MaxLatencyMs {
				continue
			}
			if m.Tier == TierPremium && q.Complexity < c.simpleThreshold && !isPreferred {
				continue
			}
			if isPreferred {
				preferredHits = append(preferredHits, m)
			} else {
				rest = append(rest, m)
			}
		}
	}
	if len(preferredHits) > 0 {
		return preferredHits
	}
	return rest
}

// Get returns the descriptor for (provider, model).
func (c *Catalog) Get(provider, model string) (Model, bool) {
	i, ok := c.byName[provider]
	if !ok {
		return Model{}, false
	}
	for _, m := range c.providers[i].Models {
		if m.Name == model {
			return m, true
		}
	}
	return Model{}, false
}

// Weight returns the provider's routing weight (1.0 for unknown providers).
func (c *Catalog) Weight(provider string) float64 {
	if i, ok := c.byName[provider]; ok {
		return c.providers[i].Weight
	}
	return 1.0
}

// Providers returns the inventory entries in deterministic order.
func (c *Catalog) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

func hasAll(m *Model, caps []string) bool {
	for _, c := range caps {
		if !m.HasCapability(c) {
			return false
		}
	}
	return true
}
