// Package gateway is the core request orchestrator.
//
// Handle runs one chat-completion request through the full pipeline: rate
// limiting, response-cache lookup, security screening, routing, and the
// provider dispatch loop with circuit breaking and fallback.
//
// Key design constraints:
//   - All dependencies are injected through Options so unit tests can
//     substitute doubles; limiter, cache, guard, metrics, audit and tracer
//     are optional and nil-safe.
//   - Every provider call goes through the shared request context, so the
//     caller's deadline bounds the whole fallback chain.
//   - Streaming responses are pass-through; they are never cached and their
//     token usage is estimated when the stream drains.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nulpointcorp/llm-router/internal/audit"
	"github.com/nulpointcorp/llm-router/internal/breaker"
	"github.com/nulpointcorp/llm-router/internal/catalog"
	"github.com/nulpointcorp/llm-router/internal/metrics"
	"github.com/nulpointcorp/llm-router/internal/observability"
	"github.com/nulpointcorp/llm-router/internal/providers"
	"github.com/nulpointcorp/llm-router/internal/ratelimit"
	"github.com/nulpointcorp/llm-router/internal/routing"
	"github.com/nulpointcorp/llm-router/internal/security"
)

// Outcome labels recorded in metrics, audit entries, and trace spans.
const (
	OutcomeSuccess          = "success"
	OutcomeCached           = "cached"
	OutcomeRateLimited      = "rate_limited"
	OutcomeBlockedPII       = "blocked_pii"
	OutcomeBlockedInjection = "blocked_injection"
	OutcomeNoModel          = "no_model"
	OutcomeAllFailed        = "all_failed"
	OutcomeCancelled        = "cancelled"
	OutcomeInvalid          = "invalid_request"
)

// labelUnknown fills metric labels before the pipeline has resolved them.
const labelUnknown = "unknown"

// anonymousTenant keys rate-limit windows for requests without a tenant.
const anonymousTenant = "anonymous"

// RateLimiter is the per-tenant admission check. Both ratelimit.Limiter and
// ratelimit.RedisLimiter satisfy it.
type RateLimiter interface {
	Check(ctx context.Context, key string) ratelimit.Decision
	RecordTokens(ctx context.Context, key string, n int64)
}

// Cost is the USD cost breakdown for one completion.
type Cost struct {
	Input  float64 `json:"input_cost"`
	Output float64 `json:"output_cost"`
	Total  float64 `json:"total_cost"`
}

// Response is the gateway's unified completion response.
type Response struct {
	ID           string            `json:"id"`
	Content      string            `json:"content,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        providers.Usage   `json:"usage"`
	Cost         Cost              `json:"cost"`
	LatencyMs    int64             `json:"latency_ms"`
	Cached       bool              `json:"cached"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	Routing      *routing.Decision `json:"routing,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Attempts     []Attempt         `json:"attempts,omitempty"`

	// Stream delivers delta chunks for streaming requests, nil otherwise.
	// The channel closes after the terminal chunk.
	Stream <-chan providers.StreamChunk `json:"-"`
}

// Options configures a Gateway. Router, Catalog, and Providers are
// required; everything else is optional.
type Options struct {
	Router    *routing.Router
	Catalog   *catalog.Catalog
	Providers map[string]providers.Provider

	Tracker  *catalog.Tracker
	Breakers *breaker.Registry
	Limiter  RateLimiter
	Cache    *ResponseCache
	Guard    *security.Guard
	Metrics  *metrics.Registry
	Audit    *audit.Logger
	Tracer   trace.Tracer
	Logger   *slog.Logger

	// DisableFallback stops the dispatch loop after the primary decision.
	DisableFallback bool

	// Timeout bounds one request end to end when the caller supplied no
	// deadline. Default: providers.DefaultTimeout.
	Timeout time.Duration
}

// Gateway dispatches requests to LLM providers. Safe for concurrent use.
type Gateway struct {
	router    *routing.Router
	catalog   *catalog.Catalog
	providers map[string]providers.Provider
	tracker   *catalog.Tracker
	breakers  *breaker.Registry
	limiter   RateLimiter
	cache     *ResponseCache
	guard     *security.Guard
	metrics   *metrics.Registry
	audit     *audit.Logger
	tracer    trace.Tracer
	log       *slog.Logger

	disableFallback bool
	timeout         time.Duration
}

// New validates opts and builds a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Router == nil {
		return nil, errors.New("gateway: router is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("gateway: catalog is required")
	}
	if len(opts.Providers) == 0 {
		return nil, errors.New("gateway: at least one provider adapter is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = providers.DefaultTimeout
	}

	return &Gateway{
		router:          opts.Router,
		catalog:         opts.Catalog,
		providers:       opts.Providers,
		tracker:         opts.Tracker,
		breakers:        opts.Breakers,
		limiter:         opts.Limiter,
		cache:           opts.Cache,
		guard:           opts.Guard,
		metrics:         opts.Metrics,
		audit:           opts.Audit,
		tracer:          tracer,
		log:             log,
		disableFallback: opts.DisableFallback,
		timeout:         timeout,
	}, nil
}

// requestResult accumulates what the finalizer reports to metrics, the
// audit log, and the trace span. For streaming responses the drain
// goroutine owns it after Handle returns.
type requestResult struct {
	id         string
	tenant     string
	start      time.Time
	outcome    string
	strategy   string
	provider   string
	model      string
	complexity float64
	routed     bool
	cacheHit   bool
	usage      providers.Usage
	costUSD    float64
	warnings   []string
	attempts   []Attempt

	// async hands finalization to the stream drain goroutine.
	async bool
}

// Handle runs one request through the pipeline. The returned error, when
// non-nil, is one of the taxonomy types in this package or wraps
// routing.ErrNoEligibleModel.
func (g *Gateway) Handle(ctx context.Context, req *providers.Request) (*Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	reqID := req.ID
	if reqID == "" {
		reqID = uuid.NewString()
	}

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	}

	ctx, span := observability.StartRequest(ctx, g.tracer, reqID)

	res := &requestResult{
		id:       reqID,
		tenant:   tenantKey(req),
		start:    time.Now(),
		outcome:  OutcomeSuccess,
		strategy: labelUnknown,
		provider: labelUnknown,
		model:    labelUnknown,
	}

	if g.metrics != nil {
		g.metrics.IncInFlight()
	}
	defer func() {
		if res.async {
			return
		}
		cancel()
		g.finish(span, res)
	}()

	// Rate limit.
	if g.limiter != nil {
		d := g.limiter.Check(ctx, res.tenant)
		if !d.Allowed {
			res.outcome = OutcomeRateLimited
			if g.metrics != nil {
				g.metrics.RecordRateLimit("blocked")
			}
			g.log.WarnContext(ctx, "rate_limit_exceeded",
				slog.String("request_id", reqID),
				slog.String("tenant", res.tenant),
				slog.Int64("retry_after_ms", d.RetryAfterMs),
			)
			return nil, &RateLimitedError{RetryAfterMs: d.RetryAfterMs}
		}
		if g.metrics != nil {
			g.metrics.RecordRateLimit("allowed")
		}
	}

	// Cache lookup.
	if g.cache != nil {
		if !g.cache.Eligible(req) {
			if g.metrics != nil {
				g.metrics.CacheGetBypass()
			}
		} else if hit, ok := g.cache.Lookup(ctx, req); ok {
			res.outcome = OutcomeCached
			res.cacheHit = true
			res.provider, res.model = hit.Provider, hit.Model
			res.usage = hit.Usage
			res.warnings = hit.Warnings
			if hit.Routing != nil {
				res.strategy = string(hit.Routing.Strategy)
			}
			if g.metrics != nil {
				g.metrics.CacheGetHit()
			}
			g.log.DebugContext(ctx, "cache_hit",
				slog.String("request_id", reqID),
				slog.String("tenant", res.tenant),
			)
			hit.ID = reqID
			hit.LatencyMs = time.Since(res.start).Milliseconds()
			return hit, nil
		} else {
			if g.metrics != nil {
				g.metrics.CacheGetMiss()
			}
		}
	}

	// Security screening. A blocked request never reaches routing; a masked
	// copy replaces the original for everything downstream.
	dispatchReq := req
	if g.guard != nil {
		check := g.guard.CheckRequest(req)
		res.warnings = append(res.warnings, check.Warnings...)
		if check.Blocked {
			if check.BlockedBy == "injection" {
				res.outcome = OutcomeBlockedInjection
			} else {
				res.outcome = OutcomeBlockedPII
			}
			if g.metrics != nil {
				g.metrics.RecordSecurity(check.BlockedBy, "block")
			}
			g.log.WarnContext(ctx, "request_blocked",
				slog.String("request_id", reqID),
				slog.String("stage", check.BlockedBy),
				slog.String("reason", check.Reason),
			)
			return nil, &SecurityBlockedError{Stage: check.BlockedBy, Reason: check.Reason}
		}
		if check.Sanitized != nil {
			dispatchReq = check.Sanitized
		}
		if g.metrics != nil {
			if len(check.PIITypes) > 0 {
				if check.Sanitized != nil {
					g.metrics.RecordSecurity("pii", "mask")
				} else {
					g.metrics.RecordSecurity("pii", "warn")
				}
			}
			if len(check.InjectionKinds) > 0 {
				g.metrics.RecordSecurity("injection", "warn")
			}
		}
	}

	// Route.
	decision, err := g.router.Route(dispatchReq)
	if err != nil {
		if errors.Is(err, routing.ErrNoEligibleModel) {
			res.outcome = OutcomeNoModel
		} else {
			res.outcome = OutcomeInvalid
		}
		g.log.WarnContext(ctx, "routing_failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	res.strategy = string(decision.Strategy)
	res.complexity = decision.Complexity
	res.routed = true

	g.log.InfoContext(ctx, "request_routed",
		slog.String("request_id", reqID),
		slog.String("strategy", res.strategy),
		slog.String("provider", decision.Provider),
		slog.String("model", decision.Model),
		slog.Float64("complexity", decision.Complexity),
		slog.Bool("stream", req.Stream),
	)

	// Dispatch with fallback.
	resp, err := g.dispatch(ctx, dispatchReq, decision, span, res)
	if err != nil {
		var cancelled *CancelledError
		if errors.As(err, &cancelled) {
			res.outcome = OutcomeCancelled
		} else {
			res.outcome = OutcomeAllFailed
		}
		g.log.ErrorContext(ctx, "dispatch_failed",
			slog.String("request_id", reqID),
			slog.String("primary_provider", decision.Provider),
			slog.Int("attempts", len(res.attempts)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(res.start)),
		)
		return nil, err
	}

	// Streaming: hand finalization to the drain goroutine.
	if resp.Stream != nil {
		res.async = true
		resp.Stream = g.wrapStream(ctx, cancel, span, res, resp.Stream)
		return resp, nil
	}

	res.usage = resp.Usage
	res.costUSD = resp.Cost.Total
	if g.limiter != nil {
		g.limiter.RecordTokens(ctx, res.tenant, int64(resp.Usage.InputTokens+resp.Usage.OutputTokens))
	}
	if g.metrics != nil {
		g.metrics.AddTokens(resp.Provider, resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		g.metrics.AddCost(resp.Provider, resp.Model, resp.Cost.Total)
	}

	// Store keyed on the original request so the next identical submission
	// hits even when dispatch used a masked copy.
	if g.cache != nil && g.cache.Eligible(req) {
		if err := g.cache.Store(ctx, req, resp); err != nil {
			if g.metrics != nil {
				g.metrics.CacheSetError()
			}
			g.log.WarnContext(ctx, "cache_store_error",
				slog.String("request_id", reqID),
				slog.String("error", err.Error()),
			)
		} else if g.metrics != nil {
			g.metrics.CacheSetOK()
		}
	}

	resp.LatencyMs = time.Since(res.start).Milliseconds()

	g.log.DebugContext(ctx, "response_ok",
		slog.String("request_id", reqID),
		slog.String("provider", resp.Provider),
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Float64("cost_usd", resp.Cost.Total),
		slog.Duration("elapsed", time.Since(res.start)),
	)

	return resp, nil
}

// finish reports the request's terminal state exactly once per request.
func (g *Gateway) finish(span trace.Span, res *requestResult) {
	dur := time.Since(res.start)
	labels := attemptLabels(res.attempts)
	if res.outcome == OutcomeSuccess && res.provider != labelUnknown {
		labels = append(labels, res.provider+"/"+res.model)
	}

	if g.metrics != nil {
		g.metrics.DecInFlight()
		g.metrics.ObserveRequest(res.strategy, res.outcome, dur)
		g.metrics.RecordOutcome(res.provider, res.model, res.outcome)
		if res.routed {
			g.metrics.ObserveComplexity(res.strategy, res.complexity)
		}
	}

	if g.audit != nil {
		g.audit.Log(audit.Entry{
			Time:         time.Now().UTC(),
			RequestID:    res.id,
			Tenant:       res.tenant,
			Strategy:     res.strategy,
			Complexity:   res.complexity,
			Provider:     res.provider,
			Model:        res.model,
			Outcome:      res.outcome,
			CacheHit:     res.cacheHit,
			LatencyMs:    dur.Milliseconds(),
			InputTokens:  res.usage.InputTokens,
			OutputTokens: res.usage.OutputTokens,
			CostUSD:      res.costUSD,
			Attempts:     labels,
			Warnings:     res.warnings,
		})
	}

	observability.EndRequest(span, observability.RequestResult{
		Strategy:     res.strategy,
		Complexity:   res.complexity,
		Attempts:     labels,
		CacheHit:     res.cacheHit,
		TotalLatency: dur,
		TotalCostUSD: res.costUSD,
		Warnings:     res.warnings,
		Outcome:      res.outcome,
	})
}

// attemptLabels renders the attempt history as "provider/model" strings.
func attemptLabels(attempts []Attempt) []string {
	if len(attempts) == 0 {
		return nil
	}
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Provider + "/" + a.Model
	}
	return out
}

func tenantKey(req *providers.Request) string {
	if req.Tenant != "" {
		return req.Tenant
	}
	return anonymousTenant
}
