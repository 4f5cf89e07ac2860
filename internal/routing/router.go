// Package routing scores the eligible model set for a request and produces
// routing decisions. Scoring is deterministic: given the same catalog,
// reliability snapshots and request, the ranked order is always the same,
// with score ties broken by (provider, model) name order.
package routing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nulpointcorp/llm-router/internal/catalog"
	"github.com/nulpointcorp/llm-router/internal/providers"
)

const (
	// capabilityBonus is added once per requested capability the model
	// declares, after strategy weighting.
	capabilityBonus = 0.05
	// maxAlternatives bounds the ranked fallback candidates carried on a
	// decision.
	maxAlternatives = 3
)

// ErrNoEligibleModel means the filter left nothing to score.
var ErrNoEligibleModel = errors.New("routing: no eligible model")

// ModelRef names one (provider, model) pair.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Decision is one routing outcome. Decisions are immutable; every fallback
// attempt gets a fresh one.
type Decision struct {
	Strategy     Strategy   `json:"strategy"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Complexity   float64    `json:"complexity"`
	Reason       string     `json:"reason"`
	Alternatives []ModelRef `json:"alternatives,omitempty"`

	// excluded are providers that already failed for this request. Carried
	// forward so each fallback re-route keeps the full failure set.
	excluded []string
}

// Router ranks eligible models by strategy-weighted score.
type Router struct {
	catalog         *catalog.Catalog
	tracker         *catalog.Tracker
	defaultStrategy Strategy
}

// New builds a router over the model inventory and reliability tracker.
// defaultStrategy applies when a request names none.
func New(cat *catalog.Catalog, tracker *catalog.Tracker, defaultStrategy Strategy) *Router {
	return &Router{catalog: cat, tracker: tracker, defaultStrategy: defaultStrategy}
}

// Route produces the initial decision for req. It returns an error wrapping
// ErrNoEligibleModel when the eligibility filter leaves nothing, or a parse
// error when the request names an unknown strategy.
func (r *Router) Route(req *providers.Request) (*Decision, error) {
	return r.route(req, nil)
}

// Fallback produces the next decision after failed: first the next stored
// alternative whose provider has not failed yet, then a full re-route with
// every failed provider excluded. Returns nil when nothing is left.
func (r *Router) Fallback(req *providers.Request, failed *Decision) *Decision {
	tried := make([]string, 0, len(failed.excluded)+1)
	tried = append(tried, failed.excluded...)
	tried = append(tried, failed.Provider)

	for i, alt := range failed.Alternatives {
		if containsName(tried, alt.Provider) {
			continue
		}
		next := &Decision{
			Strategy:   failed.Strategy,
			Provider:   alt.Provider,
			Model:      alt.Model,
			Complexity: failed.Complexity,
			Reason: fmt.Sprintf("fallback to %s/%s after %s/%s failed",
				alt.Provider, alt.Model, failed.Provider, failed.Model),
			excluded: tried,
		}
		if rest := failed.Alternatives[i+1:]; len(rest) > 0 {
			next.Alternatives = append([]ModelRef(nil), rest...)
		}
		return next
	}

	d, err := r.route(req, tried)
	if err != nil {
		return nil
	}
	return d
}

func (r *Router) route(req *providers.Request, failedProviders []string) (*Decision, error) {
	strategy := r.defaultStrategy
	prefs := req.Preferences
	if prefs != nil && prefs.Strategy != "" {
		s, err := ParseStrategy(prefs.Strategy)
		if err != nil {
			return nil, fmt.Errorf("routing: %w", err)
		}
		strategy = s
	}

	cx := Complexity(req)
	q := catalog.Query{Complexity: cx}
	if prefs != nil {
		q.PreferredProviders = prefs.PreferredProviders
		q.RequiredCapabilities = prefs.RequiredCapabilities
		q.MaxLatencyMs = prefs.MaxLatencyMs
		q.ExcludeProviders = append(q.ExcludeProviders, prefs.ExcludeProviders...)
	}
	q.ExcludeProviders = append(q.ExcludeProviders, failedProviders...)

	models := r.catalog.Eligible(q)
	if len(models) == 0 {
		return nil, fmt.Errorf("%w (strategy %s, complexity %.2f)", ErrNoEligibleModel, strategy, cx)
	}

	ranked := r.rank(models, strategy, cx, q.RequiredCapabilities)
	top := ranked[0]

	d := &Decision{
		Strategy:   strategy,
		Provider:   top.model.Provider,
		Model:      top.model.Name,
		Complexity: cx,
		Reason: fmt.Sprintf("%s selected %s/%s (score %.3f, %d eligible)",
			strategy, top.model.Provider, top.model.Name, top.score, len(models)),
		excluded: failedProviders,
	}
	for _, s := range ranked[1:] {
		if len(d.Alternatives) == maxAlternatives {
			break
		}
		d.Alternatives = append(d.Alternatives, ModelRef{Provider: s.model.Provider, Model: s.model.Name})
	}
	return d, nil
}

type scoredModel struct {
	model catalog.Model
	score float64
}

func (r *Router) rank(models []catalog.Model, strategy Strategy, cx float64, required []string) []scoredModel {
	out := make([]scoredModel, len(models))
	for i, m := range models {
		out[i] = scoredModel{model: m, score: r.score(&m, strategyWeights[strategy], cx, required)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].model.Provider != out[j].model.Provider {
			return out[i].model.Provider < out[j].model.Provider
		}
		return out[i].model.Name < out[j].model.Name
	})
	return out
}

func (r *Router) score(m *catalog.Model, w weights, cx float64, required []string) float64 {
	costScore := 1 - math.Min((m.CostPer1KInput+m.CostPer1KOutput)/0.1, 1)
	latencyScore := 1 - math.Min(float64(m.LatencyP50Ms)/2000, 1)
	reliability := 1.0
	if snap, ok := r.tracker.Get(m.Provider, m.Name); ok {
		reliability = snap.SuccessRate
	}

	s := w.cost*costScore + w.latency*latencyScore + w.quality*qualityScore(m, cx) + w.reliability*reliability
	for _, c := range required {
		if m.HasCapability(c) {
			s += capabilityBonus
		}
	}
	return s * r.catalog.Weight(m.Provider)
}

// qualityScore rates the model's fitness for a request of the given
// complexity. Economy models earn more on simple requests and the higher
// tiers on complex ones, so complexity shifts the ranking rather than a
// hard cutoff.
func qualityScore(m *catalog.Model, cx float64) float64 {
	var q float64
	switch m.Tier {
	case catalog.TierPremium:
		q = 0.9 + 0.1*cx
	case catalog.TierStandard:
		q = 0.7 + 0.1*cx
	case catalog.TierEconomy:
		q = 0.5 + 0.2*(1-cx)
	}
	if m.HasCapability(catalog.CapReasoning) {
		q += 0.05
	}
	if m.HasCapability(catalog.CapCoding) {
		q += 0.03
	}
	if m.HasCapability(catalog.CapLongContext) {
		q += 0.02
	}
	return math.Min(q, 1)
}

func containsName(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}
