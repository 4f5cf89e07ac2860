package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nulpointcorp/llm-router/internal/audit"
	"github.com/nulpointcorp/llm-router/internal/breaker"
	npcache "github.com/nulpointcorp/llm-router/internal/cache"
	"github.com/nulpointcorp/llm-router/internal/catalog"
	"github.com/nulpointcorp/llm-router/internal/config"
	"github.com/nulpointcorp/llm-router/internal/gateway"
	"github.com/nulpointcorp/llm-router/internal/httpapi"
	"github.com/nulpointcorp/llm-router/internal/metrics"
	"github.com/nulpointcorp/llm-router/internal/observability"
	"github.com/nulpointcorp/llm-router/internal/ratelimit"
	"github.com/nulpointcorp/llm-router/internal/routing"
	"github.com/nulpointcorp/llm-router/internal/security"
)

// initInfra establishes external connections later stages depend on: Redis
// when the cache or distributed limiter needs it, and the trace exporter.
func (a *App) initInfra(ctx context.Context) error {
	if needsRedis(a.cfg) {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))
		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
	}

	tp, err := observability.InitTracing(ctx, observability.Config{
		Enabled:     a.cfg.Tracing.Enabled,
		Endpoint:    a.cfg.Tracing.Endpoint,
		ServiceName: a.cfg.Tracing.ServiceName,
		SampleRate:  a.cfg.Tracing.SampleRate,
		Insecure:    a.cfg.Tracing.Insecure,
	}, a.version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.tracer = tp

	return nil
}

// needsRedis reports whether any enabled subsystem requires a Redis
// connection at startup. Config validation already guarantees a URL is
// present when this returns true.
func needsRedis(cfg *config.Config) bool {
	if cfg.Cache.Enabled && cfg.Cache.Mode == "redis" {
		return true
	}
	return cfg.RateLimit.Distributed && cfg.RateLimit.RequestsPerMinute > 0
}

func (a *App) initProviders(ctx context.Context) error {
	provs, err := buildProviders(ctx, &a.cfg.Providers)
	if err != nil {
		return err
	}
	if len(provs) == 0 {
		return fmt.Errorf("no provider credentials configured")
	}
	a.provs = provs

	names := make([]string, 0, len(provs))
	for name := range provs {
		names = append(names, name)
	}
	sort.Strings(names)
	a.log.Info("providers configured", slog.Any("providers", names))

	return nil
}

func (a *App) initServices(ctx context.Context) error {
	cat, err := catalog.New(toCatalogProviders(a.cfg.Providers.Inventory), a.cfg.Routing.SimpleThreshold)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	a.cat = cat
	a.tracker = catalog.NewTracker()

	a.breakers = breaker.NewRegistry(
		breakerSettings(a.cfg.Breaker.BreakerRule),
		breakerOverrides(a.cfg.Breaker.Providers),
	)

	if rpm := a.cfg.RateLimit.RequestsPerMinute; rpm > 0 {
		if a.cfg.RateLimit.Distributed {
			a.limiter = ratelimit.NewRedisLimiter(a.rdb, rpm)
		} else {
			a.memLimiter = ratelimit.NewLimiter(rpm, a.cfg.RateLimit.TokensPerMinute)
			a.limiter = a.memLimiter
		}
	}

	guard, err := security.New(guardConfig(&a.cfg.Security))
	if err != nil {
		return fmt.Errorf("security: %w", err)
	}
	a.guard = guard

	if err := a.initCache(ctx); err != nil {
		return err
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	if a.cfg.Audit.Enabled {
		sinks := []audit.Sink{audit.NewSlogSink(a.log)}
		if len(a.cfg.Audit.ClickHouse.Addr) > 0 {
			ch, err := audit.NewClickHouseSink(ctx, audit.ClickHouseOptions{
				Addr:     a.cfg.Audit.ClickHouse.Addr,
				Database: a.cfg.Audit.ClickHouse.Database,
				Username: a.cfg.Audit.ClickHouse.Username,
				Password: a.cfg.Audit.ClickHouse.Password,
				Table:    a.cfg.Audit.ClickHouse.Table,
			})
			if err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			a.chSink = ch
			sinks = append(sinks, ch)
		}
		if a.cfg.Cost.DailyBudgetUSD > 0 || a.cfg.Cost.MonthlyBudgetUSD > 0 {
			sinks = append(sinks, audit.NewBudgetSink(a.log, a.cfg.Cost.DailyBudgetUSD, a.cfg.Cost.MonthlyBudgetUSD))
		}
		a.auditLog = audit.New(a.baseCtx, sinks...)
	}

	return nil
}

// initCache builds the response cache backend. The readiness probe for the
// in-memory backend always reports true; the Redis backend pings.
func (a *App) initCache(_ context.Context) error {
	if !a.cfg.Cache.Enabled {
		return nil
	}

	var backend npcache.Cache
	switch a.cfg.Cache.Mode {
	case "redis":
		backend = npcache.NewRedisCache(a.rdb)
		a.cacheReady = redisPinger(a.baseCtx, a.rdb)
	default:
		mem := npcache.NewMemoryCache(a.baseCtx)
		a.memCache = mem
		backend = mem
		a.cacheReady = func() bool { return true }
	}

	var exclusions *npcache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		ex, err := npcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = ex
	}

	a.respCache = gateway.NewResponseCache(backend, exclusions, a.cfg.Cache.TTL)
	return nil
}

func (a *App) initGateway(_ context.Context) error {
	strategy, err := routing.ParseStrategy(a.cfg.Routing.DefaultStrategy)
	if err != nil {
		return err
	}
	router := routing.New(a.cat, a.tracker, strategy)

	gw, err := gateway.New(gateway.Options{
		Router:          router,
		Catalog:         a.cat,
		Providers:       a.provs,
		Tracker:         a.tracker,
		Breakers:        a.breakers,
		Limiter:         a.limiter,
		Cache:           a.respCache,
		Guard:           a.guard,
		Metrics:         a.prom,
		Audit:           a.auditLog,
		Tracer:          a.tracer.Tracer(),
		Logger:          a.log,
		DisableFallback: a.cfg.Routing.DisableFallback,
		Timeout:         a.cfg.Server.RequestTimeout,
	})
	if err != nil {
		return err
	}
	a.gw = gw

	a.health = gateway.NewHealthChecker(a.baseCtx, a.provs, a.breakers, a.cacheReady, a.prom)
	return nil
}

func (a *App) initServer(_ context.Context) error {
	a.srv = httpapi.New(httpapi.Options{
		Gateway:     a.gw,
		Health:      a.health,
		Metrics:     a.prom,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Logger:      a.log,
	})
	return nil
}

// ── Config → domain conversions ──────────────────────────────────────────────

func toCatalogProviders(specs []config.ProviderSpec) []catalog.Provider {
	out := make([]catalog.Provider, 0, len(specs))
	for _, p := range specs {
		cp := catalog.Provider{
			Name:    p.Name,
			Enabled: p.IsEnabled(),
			Weight:  p.Weight,
			Models:  make([]catalog.Model, 0, len(p.Models)),
		}
		for _, m := range p.Models {
			cp.Models = append(cp.Models, catalog.Model{
				Name:            m.Name,
				Tier:            catalog.Tier(m.Tier),
				Capabilities:    m.Capabilities,
				CostPer1KInput:  m.CostPer1KInput,
				CostPer1KOutput: m.CostPer1KOutput,
				LatencyP50Ms:    m.LatencyP50Ms,
				LatencyP95Ms:    m.LatencyP95Ms,
				ContextWindow:   m.ContextWindow,
				Enabled:         m.IsEnabled(),
			})
		}
		out = append(out, cp)
	}
	return out
}

func breakerSettings(r config.BreakerRule) breaker.Config {
	return breaker.Config{
		FailureThreshold:         r.FailureThreshold,
		OpenDuration:             r.OpenDuration,
		HalfOpenSuccessThreshold: r.HalfOpenSuccessThreshold,
	}
}

func breakerOverrides(rules map[string]config.BreakerRule) map[string]breaker.Config {
	if len(rules) == 0 {
		return nil
	}
	out := make(map[string]breaker.Config, len(rules))
	for name, r := range rules {
		out[name] = breakerSettings(r)
	}
	return out
}

func guardConfig(sec *config.SecurityConfig) security.Config {
	cfg := security.Config{
		PIIEnabled:       sec.PIIDetection.Enabled,
		PIIAction:        security.Action(sec.PIIDetection.Action),
		InjectionEnabled: sec.PromptInjection.Enabled,
		InjectionAction:  security.Action(sec.PromptInjection.Action),
		OutputEnabled:    sec.OutputSanitization.Enabled,
		BlockedPatterns:  sec.OutputSanitization.BlockedPatterns,
	}
	for _, p := range sec.PIIDetection.Patterns {
		cfg.PIIPatterns = append(cfg.PIIPatterns, security.PatternConfig{Label: p.Label, Pattern: p.Pattern})
	}
	return cfg
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
