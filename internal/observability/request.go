package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRequest opens the root span covering one gateway request.
func StartRequest(ctx context.Context, tracer trace.Tracer, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "gateway.request",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("request_id", requestID)),
	)
}

// RequestResult carries the terminal attributes recorded on the request
// span.
type RequestResult struct {
	Strategy     string
	Complexity   float64
	Attempts     []string // "provider/model" per dispatch attempt, in order
	CacheHit     bool
	TotalLatency time.Duration
	TotalCostUSD float64
	Warnings     []string
	Outcome      string
}

// EndRequest records the result attributes and closes the span.
func EndRequest(span trace.Span, res RequestResult) {
	span.SetAttributes(
		attribute.String("strategy", res.Strategy),
		attribute.Float64("complexity", res.Complexity),
		attribute.StringSlice("provider_attempts", res.Attempts),
		attribute.Bool("cache_hit", res.CacheHit),
		attribute.Int64("total_latency_ms", res.TotalLatency.Milliseconds()),
		attribute.Float64("total_cost_usd", res.TotalCostUSD),
		attribute.StringSlice("warnings", res.Warnings),
		attribute.String("outcome", res.Outcome),
	)
	span.End()
}

// RecordAttempt adds one dispatch attempt as a span event.
func RecordAttempt(span trace.Span, provider, model string, latency time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Int64("latency_ms", latency.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("attempt", trace.WithAttributes(attrs...))
}

// RecordFailure marks the span failed with err.
func RecordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
