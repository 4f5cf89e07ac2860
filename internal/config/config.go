// Package config loads and validates all runtime configuration for the
// router.
//
// Configuration is read from environment variables (preferred for
// containers) or from an llmrouter.yaml file in the working directory.
// Environment variables take precedence over the YAML file and use the
// LLMROUTER_ prefix with dots replaced by underscores: the key
// "server.port" becomes LLMROUTER_SERVER_PORT. A handful of industry-
// standard credential variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...)
// are honored without the prefix.
//
// The provider/model inventory lives under "providers.inventory" in the
// YAML file. When no inventory is configured, a built-in one is derived
// from whichever provider credentials are present, so the router can start
// with nothing but an API key in the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Providers ProvidersConfig
	Routing   RoutingConfig
	Cache     CacheConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	Cost      CostConfig
	Redis     RedisConfig
	Audit     AuditConfig
	Tracing   TracingConfig
}

// ServerConfig controls the HTTP front-end.
type ServerConfig struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set to specific origins in prod.
	CORSOrigins []string

	// RequestTimeout bounds one request end to end, including every
	// fallback attempt. Default: 30s.
	RequestTimeout time.Duration
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	Level string
}

// Credentials holds the API key and optional endpoint override for one
// upstream provider. An empty APIKey disables the provider unless the
// provider authenticates some other way (Ollama uses only BaseURL).
type Credentials struct {
	APIKey  string
	BaseURL string
}

// ProvidersConfig holds upstream credentials and the model inventory.
type ProvidersConfig struct {
	OpenAI    Credentials
	Anthropic Credentials
	Gemini    Credentials

	// OpenAI-compatible providers.
	XAI      Credentials
	Groq     Credentials
	DeepSeek Credentials
	Together Credentials
	Ollama   Credentials // local; BaseURL only, no key

	// Inventory is the provider/model table the router scores against.
	// Loaded from "providers.inventory" in the YAML file; when absent, a
	// built-in inventory is derived from the configured credentials.
	Inventory []ProviderSpec
}

// ProviderSpec is one inventory entry.
type ProviderSpec struct {
	Name    string      `mapstructure:"name"`
	Enabled *bool       `mapstructure:"enabled"` // nil means enabled
	Weight  float64     `mapstructure:"weight"`
	Models  []ModelSpec `mapstructure:"models"`
}

// IsEnabled treats an absent "enabled" key as true, so inventory entries
// only need the flag when disabling something.
func (s *ProviderSpec) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// ModelSpec is one routable model in the inventory. Costs are USD per
// 1000 tokens; latencies are static planning figures, not live
// measurements.
type ModelSpec struct {
	Name            string   `mapstructure:"name"`
	Tier            string   `mapstructure:"tier"`
	Capabilities    []string `mapstructure:"capabilities"`
	CostPer1KInput  float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	LatencyP50Ms    int      `mapstructure:"latency_p50_ms"`
	LatencyP95Ms    int      `mapstructure:"latency_p95_ms"`
	ContextWindow   int      `mapstructure:"context_window"`
	Enabled         *bool    `mapstructure:"enabled"` // nil means enabled
}

// IsEnabled treats an absent "enabled" key as true.
func (s *ModelSpec) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// RoutingConfig controls strategy selection and complexity gating.
type RoutingConfig struct {
	// DefaultStrategy applies when a request names none. One of:
	// cost_optimized, latency_optimized, quality_optimized, balanced.
	// Default: balanced.
	DefaultStrategy string

	// SimpleThreshold is the complexity below which premium-tier models
	// are excluded unless their provider is explicitly preferred.
	// Default: 0.3.
	SimpleThreshold float64

	// ComplexThreshold marks the top complexity band. Default: 0.7.
	ComplexThreshold float64

	// DisableFallback stops dispatch after the primary decision fails
	// instead of walking the ranked alternatives.
	DisableFallback bool
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Enabled turns response caching on. Default: true.
	Enabled bool

	// Mode selects the cache backend:
	//   "memory" — In-process TTL cache. No external deps; not shared across replicas.
	//   "redis"  — Redis-backed cache (requires redis.url). Recommended for production.
	// Default: "memory".
	Mode string

	// TTL is the time-to-live for cached responses. Default: 5m.
	TTL time.Duration

	// ExcludeExact lists tenant names or tags that must never be cached.
	ExcludeExact []string

	// ExcludePatterns lists Go regular expressions matched against tenant
	// names and tags. Matching requests bypass the cache.
	ExcludePatterns []string

	// SemanticSimilarityThreshold is reserved for embedding-based lookup;
	// the shipped key derivation is exact-match. Must stay in [0, 1].
	SemanticSimilarityThreshold float64
}

// SecurityConfig controls the request guard stages.
type SecurityConfig struct {
	PIIDetection       PIIConfig
	PromptInjection    InjectionConfig
	OutputSanitization OutputConfig
}

// PIIConfig controls the PII detection stage.
type PIIConfig struct {
	// Enabled turns PII scanning on. Default: true.
	Enabled bool

	// Action is what happens on a match: block, mask, or warn.
	// Default: mask.
	Action string

	// Patterns are operator-supplied labeled regexes appended to the
	// built-in set (email, national ID, credit card, phone). YAML only.
	Patterns []PatternRule
}

// PatternRule is one labeled PII regex. The mask token is derived from the
// label: {label: employee_id} masks to [EMPLOYEE_ID_REDACTED].
type PatternRule struct {
	Label   string `mapstructure:"label"`
	Pattern string `mapstructure:"pattern"`
}

// InjectionConfig controls the prompt-injection stage.
type InjectionConfig struct {
	// Enabled turns injection scanning on. Default: true.
	Enabled bool

	// Action is what happens on a high-confidence match: block or warn.
	// Default: block.
	Action string
}

// OutputConfig controls response sanitization.
type OutputConfig struct {
	// Enabled turns output scrubbing on. Default: false.
	Enabled bool

	// BlockedPatterns are regexes replaced with [REDACTED] in provider
	// output.
	BlockedPatterns []string
}

// RateLimitConfig controls per-tenant request limiting.
type RateLimitConfig struct {
	// RequestsPerMinute caps requests per tenant per fixed 60s window.
	// 0 disables rate limiting. Default: 0.
	RequestsPerMinute int

	// TokensPerMinute is recorded per window but not enforced. Default: 0.
	TokensPerMinute int64

	// Distributed switches to the Redis-backed limiter so replicas share
	// windows. Requires redis.url. Default: false.
	Distributed bool
}

// BreakerRule holds circuit breaker tuning for one provider or the global
// default. Zero fields fall back to the level above them.
type BreakerRule struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open. Default: 5.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// OpenDuration is how long the breaker rejects requests after
	// tripping, before it admits recovery probes. Default: 30s.
	OpenDuration time.Duration `mapstructure:"open_duration"`

	// HalfOpenSuccessThreshold is the number of consecutive successful
	// probes required to close the breaker again. Default: 2.
	HalfOpenSuccessThreshold int `mapstructure:"half_open_success_threshold"`
}

// BreakerConfig holds the global breaker defaults plus per-provider
// overrides keyed by provider name (YAML only). Zero override fields fall
// back to the global values.
type BreakerConfig struct {
	BreakerRule

	Providers map[string]BreakerRule
}

// CostConfig carries advisory spend budgets. Crossing a budget logs an
// alert; requests are never rejected on cost.
type CostConfig struct {
	// DailyBudgetUSD alerts when the UTC-day spend crosses it. 0 disables.
	DailyBudgetUSD float64

	// MonthlyBudgetUSD alerts when the UTC-month spend crosses it.
	// 0 disables.
	MonthlyBudgetUSD float64
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// AuditConfig controls the async request audit trail.
type AuditConfig struct {
	// Enabled turns the audit logger on. Default: true.
	Enabled bool

	// ClickHouse configures the optional analytics sink. Empty Addr keeps
	// the default slog sink only.
	ClickHouse ClickHouseConfig
}

// ClickHouseConfig holds the analytics sink connection settings.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

// TracingConfig controls the OTLP trace pipeline.
type TracingConfig struct {
	// Enabled turns span export on. Default: false (no-op spans).
	Enabled bool

	// Endpoint is the OTLP gRPC collector address. Default: localhost:4317.
	Endpoint string

	// ServiceName labels exported spans. Default: llm-router.
	ServiceName string

	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.0.
	SampleRate float64

	// Insecure disables TLS toward the collector. Default: true.
	Insecure bool
}

// Load reads configuration from environment variables and (optionally)
// from llmrouter.yaml in the current working directory.
//
// At least one provider must end up in the inventory. redis.url is only
// required when a component is configured to use Redis.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("llmrouter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read llmrouter.yaml: %w", err)
		}
	}

	v.SetEnvPrefix("llmrouter")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindCredentialAliases(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			CORSOrigins:    v.GetStringSlice("server.cors_origins"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},

		Log: LogConfig{
			Level: strings.ToLower(v.GetString("log.level")),
		},

		Providers: ProvidersConfig{
			OpenAI:    credentials(v, "providers.openai"),
			Anthropic: credentials(v, "providers.anthropic"),
			Gemini:    credentials(v, "providers.gemini"),
			XAI:       credentials(v, "providers.xai"),
			Groq:      credentials(v, "providers.groq"),
			DeepSeek:  credentials(v, "providers.deepseek"),
			Together:  credentials(v, "providers.together"),
			Ollama:    credentials(v, "providers.ollama"),
		},

		Routing: RoutingConfig{
			DefaultStrategy:  strings.ToLower(v.GetString("routing.default_strategy")),
			SimpleThreshold:  v.GetFloat64("routing.complexity_thresholds.simple"),
			ComplexThreshold: v.GetFloat64("routing.complexity_thresholds.complex"),
			DisableFallback:  v.GetBool("routing.disable_fallback"),
		},

		Cache: CacheConfig{
			Enabled:                     v.GetBool("cache.enabled"),
			Mode:                        strings.ToLower(v.GetString("cache.mode")),
			TTL:                         v.GetDuration("cache.ttl"),
			ExcludeExact:                v.GetStringSlice("cache.exclude_exact"),
			ExcludePatterns:             v.GetStringSlice("cache.exclude_patterns"),
			SemanticSimilarityThreshold: v.GetFloat64("cache.semantic_similarity_threshold"),
		},

		Security: SecurityConfig{
			PIIDetection: PIIConfig{
				Enabled: v.GetBool("security.pii_detection.enabled"),
				Action:  strings.ToLower(v.GetString("security.pii_detection.action")),
			},
			PromptInjection: InjectionConfig{
				Enabled: v.GetBool("security.prompt_injection.enabled"),
				Action:  strings.ToLower(v.GetString("security.prompt_injection.action")),
			},
			OutputSanitization: OutputConfig{
				Enabled:         v.GetBool("security.output_sanitization.enabled"),
				BlockedPatterns: v.GetStringSlice("security.output_sanitization.blocked_patterns"),
			},
		},

		RateLimit: RateLimitConfig{
			RequestsPerMinute: v.GetInt("rate_limit.requests_per_minute"),
			TokensPerMinute:   v.GetInt64("rate_limit.tokens_per_minute"),
			Distributed:       v.GetBool("rate_limit.distributed"),
		},

		Breaker: BreakerConfig{
			BreakerRule: BreakerRule{
				FailureThreshold:         v.GetInt("breaker.failure_threshold"),
				OpenDuration:             v.GetDuration("breaker.open_duration"),
				HalfOpenSuccessThreshold: v.GetInt("breaker.half_open_success_threshold"),
			},
		},

		Cost: CostConfig{
			DailyBudgetUSD:   v.GetFloat64("cost.budgets.daily"),
			MonthlyBudgetUSD: v.GetFloat64("cost.budgets.monthly"),
		},

		Redis: RedisConfig{URL: v.GetString("redis.url")},

		Audit: AuditConfig{
			Enabled: v.GetBool("audit.enabled"),
			ClickHouse: ClickHouseConfig{
				Addr:     v.GetStringSlice("audit.clickhouse.addr"),
				Database: v.GetString("audit.clickhouse.database"),
				Username: v.GetString("audit.clickhouse.username"),
				Password: v.GetString("audit.clickhouse.password"),
				Table:    v.GetString("audit.clickhouse.table"),
			},
		},

		Tracing: TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			Endpoint:    v.GetString("tracing.endpoint"),
			ServiceName: v.GetString("tracing.service_name"),
			SampleRate:  v.GetFloat64("tracing.sample_rate"),
			Insecure:    v.GetBool("tracing.insecure"),
		},
	}

	// Structured values come from the YAML file only; unknown keys inside
	// them are configuration mistakes and fail the load.
	if err := v.UnmarshalKey("providers.inventory", &cfg.Providers.Inventory, strictDecode); err != nil {
		return nil, fmt.Errorf("config: providers.inventory: %w", err)
	}
	if err := v.UnmarshalKey("security.pii_detection.patterns", &cfg.Security.PIIDetection.Patterns, strictDecode); err != nil {
		return nil, fmt.Errorf("config: security.pii_detection.patterns: %w", err)
	}
	if err := v.UnmarshalKey("breaker.providers", &cfg.Breaker.Providers, strictDecode); err != nil {
		return nil, fmt.Errorf("config: breaker.providers: %w", err)
	}

	if len(cfg.Providers.Inventory) == 0 {
		cfg.Providers.Inventory = defaultInventory(&cfg.Providers)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers the default for every scalar knob so v.Get* never
// returns a surprising zero.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("log.level", "info")

	v.SetDefault("routing.default_strategy", "balanced")
	v.SetDefault("routing.complexity_thresholds.simple", 0.3)
	v.SetDefault("routing.complexity_thresholds.complex", 0.7)
	v.SetDefault("routing.disable_fallback", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.mode", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.semantic_similarity_threshold", 0.95)

	v.SetDefault("security.pii_detection.enabled", true)
	v.SetDefault("security.pii_detection.action", "mask")
	v.SetDefault("security.prompt_injection.enabled", true)
	v.SetDefault("security.prompt_injection.action", "block")
	v.SetDefault("security.output_sanitization.enabled", false)

	// Rate limit: 0 = disabled.
	v.SetDefault("rate_limit.requests_per_minute", 0)
	v.SetDefault("rate_limit.tokens_per_minute", 0)
	v.SetDefault("rate_limit.distributed", false)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_duration", "30s")
	v.SetDefault("breaker.half_open_success_threshold", 2)

	// Budgets: 0 = no alerts.
	v.SetDefault("cost.budgets.daily", 0.0)
	v.SetDefault("cost.budgets.monthly", 0.0)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.clickhouse.database", "default")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "llm-router")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// bindCredentialAliases honors the variable names the provider SDKs
// document, so an environment that already exports OPENAI_API_KEY works
// without renaming anything. The prefixed form wins when both are set.
func bindCredentialAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"providers.openai.api_key":     {"OPENAI_API_KEY"},
		"providers.openai.base_url":    {"OPENAI_BASE_URL"},
		"providers.anthropic.api_key":  {"ANTHROPIC_API_KEY"},
		"providers.anthropic.base_url": {"ANTHROPIC_BASE_URL"},
		"providers.gemini.api_key":     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
		"providers.gemini.base_url":    {"GEMINI_BASE_URL"},
		"providers.xai.api_key":        {"XAI_API_KEY"},
		"providers.groq.api_key":       {"GROQ_API_KEY"},
		"providers.deepseek.api_key":   {"DEEPSEEK_API_KEY"},
		"providers.together.api_key":   {"TOGETHER_API_KEY"},
		"providers.ollama.base_url":    {"OLLAMA_BASE_URL"},
		"redis.url":                    {"REDIS_URL"},
	}
	for key, envs := range aliases {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}

func credentials(v *viper.Viper, prefix string) Credentials {
	return Credentials{
		APIKey:  v.GetString(prefix + ".api_key"),
		BaseURL: v.GetString(prefix + ".base_url"),
	}
}

// strictDecode rejects unknown keys inside structured YAML values.
func strictDecode(dc *mapstructure.DecoderConfig) {
	dc.ErrorUnused = true
}

// validate checks all semantic constraints that cannot be expressed as
// defaults.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: server.request_timeout must be a positive duration")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log.level %q; must be one of: debug, info, warn, error", c.Log.Level)
	}

	switch c.Routing.DefaultStrategy {
	case "cost_optimized", "latency_optimized", "quality_optimized", "balanced":
	default:
		return fmt.Errorf(
			"config: invalid routing.default_strategy %q; must be one of: cost_optimized, latency_optimized, quality_optimized, balanced",
			c.Routing.DefaultStrategy,
		)
	}
	if c.Routing.SimpleThreshold < 0 || c.Routing.SimpleThreshold > 1 {
		return fmt.Errorf("config: routing.complexity_thresholds.simple must be in [0, 1], got %g", c.Routing.SimpleThreshold)
	}
	if c.Routing.ComplexThreshold < c.Routing.SimpleThreshold || c.Routing.ComplexThreshold > 1 {
		return fmt.Errorf(
			"config: routing.complexity_thresholds.complex must be in [%g, 1], got %g",
			c.Routing.SimpleThreshold, c.Routing.ComplexThreshold,
		)
	}

	switch c.Cache.Mode {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: invalid cache.mode %q; must be one of: memory, redis", c.Cache.Mode)
	}
	if c.Cache.Enabled && c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: redis.url is required when cache.mode=redis; " +
				"set cache.mode=memory to use the built-in in-process cache",
		)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be a positive duration")
	}
	if t := c.Cache.SemanticSimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: cache.semantic_similarity_threshold must be in [0, 1], got %g", t)
	}

	switch c.Security.PIIDetection.Action {
	case "block", "mask", "warn":
	default:
		return fmt.Errorf(
			"config: invalid security.pii_detection.action %q; must be one of: block, mask, warn",
			c.Security.PIIDetection.Action,
		)
	}
	switch c.Security.PromptInjection.Action {
	case "block", "warn":
	default:
		return fmt.Errorf(
			"config: invalid security.prompt_injection.action %q; must be one of: block, warn",
			c.Security.PromptInjection.Action,
		)
	}
	for _, p := range c.Security.PIIDetection.Patterns {
		if p.Label == "" || p.Pattern == "" {
			return fmt.Errorf("config: security.pii_detection.patterns entries need both label and pattern")
		}
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("config: rate_limit.requests_per_minute must be ≥ 0, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.RateLimit.TokensPerMinute < 0 {
		return fmt.Errorf("config: rate_limit.tokens_per_minute must be ≥ 0, got %d", c.RateLimit.TokensPerMinute)
	}
	if c.RateLimit.Distributed && c.Redis.URL == "" {
		return fmt.Errorf("config: redis.url is required when rate_limit.distributed=true")
	}

	if err := c.Breaker.BreakerRule.validate("breaker"); err != nil {
		return err
	}
	for name, rule := range c.Breaker.Providers {
		if err := rule.validate("breaker.providers." + name); err != nil {
			return err
		}
	}

	if c.Cost.DailyBudgetUSD < 0 || c.Cost.MonthlyBudgetUSD < 0 {
		return fmt.Errorf("config: cost.budgets must be ≥ 0")
	}

	if r := c.Tracing.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("config: tracing.sample_rate must be in [0, 1], got %g", r)
	}

	return c.validateInventory()
}

// validate rejects negative values; zero means "inherit the level above".
func (r *BreakerRule) validate(path string) error {
	if r.FailureThreshold < 0 {
		return fmt.Errorf("config: %s.failure_threshold must not be negative, got %d", path, r.FailureThreshold)
	}
	if r.OpenDuration < 0 {
		return fmt.Errorf("config: %s.open_duration must not be negative, got %s", path, r.OpenDuration)
	}
	if r.HalfOpenSuccessThreshold < 0 {
		return fmt.Errorf("config: %s.half_open_success_threshold must not be negative, got %d", path, r.HalfOpenSuccessThreshold)
	}
	return nil
}

// validateInventory checks the resolved inventory shape. Cross-field
// semantics (duplicate providers, model ordering) are re-checked by the
// catalog at startup.
func (c *Config) validateInventory() error {
	inv := c.Providers.Inventory
	if len(inv) == 0 {
		return fmt.Errorf(
			"config: no providers configured; set at least one credential " +
				"(OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, XAI_API_KEY, GROQ_API_KEY, " +
				"DEEPSEEK_API_KEY, TOGETHER_API_KEY, OLLAMA_BASE_URL) " +
				"or define providers.inventory in llmrouter.yaml",
		)
	}

	anyModel := false
	for i := range inv {
		p := &inv[i]
		if p.Name == "" {
			return fmt.Errorf("config: providers.inventory[%d] has no name", i)
		}
		for j := range p.Models {
			m := &p.Models[j]
			if m.Name == "" {
				return fmt.Errorf("config: provider %q model [%d] has no name", p.Name, j)
			}
			switch m.Tier {
			case "premium", "standard", "economy":
			default:
				return fmt.Errorf(
					"config: model %s/%s has invalid tier %q; must be one of: premium, standard, economy",
					p.Name, m.Name, m.Tier,
				)
			}
			if m.CostPer1KInput < 0 || m.CostPer1KOutput < 0 {
				return fmt.Errorf("config: model %s/%s has negative cost", p.Name, m.Name)
			}
			if p.IsEnabled() && m.IsEnabled() {
				anyModel = true
			}
		}
	}
	if !anyModel {
		return fmt.Errorf("config: providers.inventory contains no enabled models")
	}
	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
