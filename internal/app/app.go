// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, trace exporter)
//  2. initProviders — provider adapters from configured credentials
//  3. initServices  — catalog, breakers, limiter, guard, cache, metrics, audit
//  4. initGateway   — router + orchestrator + health probes
//  5. initServer    — HTTP front-end
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/llm-router/internal/audit"
	"github.com/nulpointcorp/llm-router/internal/breaker"
	npcache "github.com/nulpointcorp/llm-router/internal/cache"
	"github.com/nulpointcorp/llm-router/internal/catalog"
	"github.com/nulpointcorp/llm-router/internal/config"
	"github.com/nulpointcorp/llm-router/internal/gateway"
	"github.com/nulpointcorp/llm-router/internal/httpapi"
	"github.com/nulpointcorp/llm-router/internal/metrics"
	"github.com/nulpointcorp/llm-router/internal/observability"
	"github.com/nulpointcorp/llm-router/internal/providers"
	anthropicprov "github.com/nulpointcorp/llm-router/internal/providers/anthropic"
	geminiprov "github.com/nulpointcorp/llm-router/internal/providers/gemini"
	openaiprov "github.com/nulpointcorp/llm-router/internal/providers/openai"
	openaicompatprov "github.com/nulpointcorp/llm-router/internal/providers/openaicompat"
	"github.com/nulpointcorp/llm-router/internal/ratelimit"
	"github.com/nulpointcorp/llm-router/internal/security"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb    *redis.Client
	tracer *observability.TracerProvider

	provs map[string]providers.Provider

	cat        *catalog.Catalog
	tracker    *catalog.Tracker
	breakers   *breaker.Registry
	limiter    gateway.RateLimiter
	memLimiter *ratelimit.Limiter
	guard      *security.Guard
	memCache   *npcache.MemoryCache
	respCache  *gateway.ResponseCache
	cacheReady func() bool
	prom       *metrics.Registry
	auditLog   *audit.Logger
	chSink     *audit.ClickHouseSink

	gw     *gateway.Gateway
	health *gateway.HealthChecker
	srv    *httpapi.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"gateway", a.initGateway},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. Resources are released before returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("strategy", a.cfg.Routing.DefaultStrategy),
		slog.String("cache_mode", cacheModeLabel(a.cfg)),
		slog.Int("providers", len(a.provs)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.ListenAndServe(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		if err := a.srv.Shutdown(); err != nil {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	if a.health != nil {
		a.health.Close()
		a.health = nil
	}
	if a.auditLog != nil {
		if err := a.auditLog.Close(); err != nil {
			a.log.Error("audit close error", slog.String("error", err.Error()))
		}
		a.auditLog = nil
	}
	// The logger never closes its sinks; the ClickHouse connection is ours.
	if a.chSink != nil {
		if err := a.chSink.Close(); err != nil {
			a.log.Error("clickhouse close error", slog.String("error", err.Error()))
		}
		a.chSink = nil
	}
	if a.memLimiter != nil {
		a.memLimiter.Close()
		a.memLimiter = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.log.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		a.tracer = nil
	}
}

func cacheModeLabel(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Mode
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redisPinger returns a zero-argument probe function suitable for the
// HealthChecker. Reuses the existing client — no new connections.
func redisPinger(ctx context.Context, rdb *redis.Client) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err() == nil
	}
}

// buildProviders creates adapters for every provider with credentials. The
// map keys must match the inventory's provider names or dispatch will skip
// the entry with a "no adapter configured" attempt.
func buildProviders(ctx context.Context, cfg *config.ProvidersConfig) (map[string]providers.Provider, error) {
	provs := make(map[string]providers.Provider)

	if cfg.OpenAI.APIKey != "" {
		var opts []openaiprov.Option
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		provs["openai"] = openaiprov.New(cfg.OpenAI.APIKey, opts...)
	}
	if cfg.Anthropic.APIKey != "" {
		var opts []anthropicprov.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		provs["anthropic"] = anthropicprov.New(cfg.Anthropic.APIKey, opts...)
	}
	if cfg.Gemini.APIKey != "" {
		var opts []geminiprov.Option
		if cfg.Gemini.BaseURL != "" {
			opts = append(opts, geminiprov.WithBaseURL(cfg.Gemini.BaseURL))
		}
		p, err := geminiprov.New(ctx, cfg.Gemini.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		provs["gemini"] = p
	}

	// OpenAI-compatible providers share one adapter.
	compat := []struct {
		creds   config.Credentials
		name    string
		baseURL string
	}{
		{cfg.XAI, "xai", "https://api.x.ai/v1"},
		{cfg.Groq, "groq", "https://api.groq.com/openai/v1"},
		{cfg.DeepSeek, "deepseek", "https://api.deepseek.com/v1"},
		{cfg.Together, "together", "https://api.together.xyz/v1"},
	}
	for _, e := range compat {
		if e.creds.APIKey == "" {
			continue
		}
		base := e.creds.BaseURL
		if base == "" {
			base = e.baseURL
		}
		provs[e.name] = openaicompatprov.New(e.name, e.creds.APIKey, base)
	}

	// Ollama authenticates by reachability, not by key.
	if cfg.Ollama.BaseURL != "" {
		provs["ollama"] = openaicompatprov.New("ollama", "", cfg.Ollama.BaseURL)
	}

	return provs, nil
}
