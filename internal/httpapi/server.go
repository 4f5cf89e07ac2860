// Package httpapi is the HTTP front-end of the gateway.
//
// It exposes the unified completion endpoint plus the operational routes:
//
//	POST /v1/chat/completions — run one request through the pipeline
//	GET  /health              — component health snapshot
//	GET  /readiness           — readiness probe for orchestrators
//	GET  /metrics             — Prometheus exposition
//
// Every route runs behind the middleware chain: panic recovery, request ID
// propagation, response timing, CORS, and security headers.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-router/internal/gateway"
	"github.com/nulpointcorp/llm-router/internal/metrics"
)

// Options configures a Server. Gateway is required; everything else is
// optional and nil-safe.
type Options struct {
	Gateway *gateway.Gateway

	// Health backs GET /health and GET /readiness. Without it both routes
	// report a static "ok".
	Health *gateway.HealthChecker

	// Metrics enables GET /metrics and HTTP-level request observation.
	Metrics *metrics.Registry

	// CORSOrigins is the allowed-origin list. Empty or ["*"] allows all.
	CORSOrigins []string

	Logger *slog.Logger
}

// Server serves the gateway over fasthttp.
type Server struct {
	gw      *gateway.Gateway
	health  *gateway.HealthChecker
	metrics *metrics.Registry
	log     *slog.Logger

	corsOrigins []string
	srv         *fasthttp.Server
}

// New builds a Server from opts. It does not start listening.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		gw:          opts.Gateway,
		health:      opts.Health,
		metrics:     opts.Metrics,
		log:         log,
		corsOrigins: opts.CORSOrigins,
	}
}

// Handler builds the routed handler with the full middleware chain. Exposed
// so tests can serve it on an in-memory listener.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/chat/completions", s.handleChat)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// ListenAndServe starts the server on addr (e.g. ":8080") and blocks until
// Shutdown or a listener error.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.log.Info("http_listen", slog.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.health == nil {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	writeJSON(ctx, s.health.Snapshot())
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health == nil || s.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
