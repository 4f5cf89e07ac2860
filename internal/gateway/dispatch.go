package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nulpointcorp/llm-router/internal/observability"
	"github.com/nulpointcorp/llm-router/internal/providers"
	"github.com/nulpointcorp/llm-router/internal/routing"
)

// dispatch walks the decision chain until a provider succeeds or the chain
// is exhausted. Breaker rejections are synthetic failures: they appear in
// the attempt history but are reported to neither the breaker nor the
// reliability tracker. Every attempt shares ctx, so the caller's deadline
// bounds the whole chain.
func (g *Gateway) dispatch(
	ctx context.Context,
	req *providers.Request,
	decision *routing.Decision,
	span trace.Span,
	res *requestResult,
) (*Response, error) {
	primary := decision.Provider

	var lastErr error
	prevProvider := ""
	prevReason := ""

	for current := decision; current != nil; current = g.next(req, current) {
		provider, model := current.Provider, current.Model

		if err := ctx.Err(); err != nil {
			observability.RecordFailure(span, err)
			return nil, &CancelledError{Err: err}
		}

		adapter, ok := g.providers[provider]
		if !ok {
			// The catalog lists a provider with no configured adapter.
			res.attempts = append(res.attempts, Attempt{
				Provider: provider, Model: model, Error: "no adapter configured",
			})
			lastErr = fmt.Errorf("gateway: no adapter configured for provider %q", provider)
			g.log.ErrorContext(ctx, "missing_adapter",
				slog.String("request_id", res.id),
				slog.String("provider", provider),
			)
			prevProvider, prevReason = provider, "no_adapter"
			continue
		}

		if g.breakers != nil && !g.breakers.Admit(provider) {
			state := g.breakers.StateLabel(provider)
			rejectErr := fmt.Errorf("gateway: provider %q rejected by circuit breaker (%s)", provider, state)
			res.attempts = append(res.attempts, Attempt{
				Provider: provider, Model: model,
				Error:           "circuit breaker " + state,
				BreakerRejected: true,
			})
			observability.RecordAttempt(span, provider, model, 0, rejectErr)
			if g.metrics != nil {
				g.metrics.RecordBreakerRejection(provider, state)
				g.metrics.ObserveUpstreamAttempt(provider, model, "circuit_reject", 0)
				g.syncBreakerGauge(provider)
			}
			g.log.WarnContext(ctx, "circuit_breaker_reject",
				slog.String("request_id", res.id),
				slog.String("provider", provider),
				slog.String("state", state),
			)
			lastErr = rejectErr
			prevProvider, prevReason = provider, "circuit_reject"
			continue
		}

		// Switching providers after a failure is a failover event.
		if prevProvider != "" && prevProvider != provider && g.metrics != nil {
			g.metrics.RecordFailover(prevProvider, provider, prevReason)
		}

		start := time.Now()
		var (
			comp   *providers.Completion
			stream <-chan providers.StreamChunk
			err    error
		)
		if req.Stream {
			stream, err = adapter.Stream(ctx, req, model)
		} else {
			comp, err = adapter.Complete(ctx, req, model)
		}
		dur := time.Since(start)

		if err == nil {
			g.recordResult(provider, model, true, dur)
			observability.RecordAttempt(span, provider, model, dur, nil)
			if g.metrics != nil {
				g.metrics.ObserveUpstreamAttempt(provider, model, "success", dur)
			}
			if provider != primary {
				if g.metrics != nil {
					g.metrics.RecordFailoverSuccess(primary, provider)
				}
				g.log.InfoContext(ctx, "failover_success",
					slog.String("request_id", res.id),
					slog.String("from", primary),
					slog.String("to", provider),
					slog.Int64("latency_ms", dur.Milliseconds()),
				)
			}
			return g.buildResponse(current, comp, stream, dur, res), nil
		}

		// Failure. Cancellation counts against the provider's record with
		// the latency measured up to the cut.
		g.recordResult(provider, model, false, dur)
		reason := classifyError(err)
		observability.RecordAttempt(span, provider, model, dur, err)
		if g.metrics != nil {
			g.metrics.ObserveUpstreamAttempt(provider, model, reason, dur)
			g.metrics.RecordError(provider, reason)
		}
		res.attempts = append(res.attempts, Attempt{
			Provider: provider, Model: model,
			LatencyMs: dur.Milliseconds(),
			Error:     err.Error(),
		})
		g.log.WarnContext(ctx, "provider_attempt_failed",
			slog.String("request_id", res.id),
			slog.String("provider", provider),
			slog.String("model", model),
			slog.String("reason", reason),
			slog.Int64("latency_ms", dur.Milliseconds()),
			slog.String("error", err.Error()),
		)
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.RecordFailure(span, ctxErr)
			return nil, &CancelledError{Err: ctxErr}
		}

		// Client errors (auth, malformed request) will not change on another
		// provider; stop the chain.
		if !retryable(err) {
			break
		}
		prevProvider, prevReason = provider, reason
	}

	if g.metrics != nil {
		g.metrics.RecordFailoverExhausted(primary)
	}
	if lastErr == nil {
		lastErr = errors.New("no providers attempted")
	}
	observability.RecordFailure(span, lastErr)
	return nil, &AllProvidersFailedError{Attempts: res.attempts, Err: lastErr}
}

// next advances the fallback chain, or ends it when fallback is disabled.
func (g *Gateway) next(req *providers.Request, failed *routing.Decision) *routing.Decision {
	if g.disableFallback {
		return nil
	}
	return g.router.Fallback(req, failed)
}

// buildResponse assembles the success response for the serving decision.
// Non-streaming content passes through output sanitization; cost comes from
// the catalog's per-1k rates.
func (g *Gateway) buildResponse(
	decision *routing.Decision,
	comp *providers.Completion,
	stream <-chan providers.StreamChunk,
	dur time.Duration,
	res *requestResult,
) *Response {
	res.provider, res.model = decision.Provider, decision.Model

	resp := &Response{
		ID:        res.id,
		Provider:  decision.Provider,
		Model:     decision.Model,
		Routing:   decision,
		LatencyMs: dur.Milliseconds(),
		Attempts:  res.attempts,
	}

	if stream != nil {
		resp.Stream = stream
		resp.Warnings = res.warnings
		return resp
	}

	content := comp.Content
	if g.guard != nil {
		clean, warns := g.guard.SanitizeOutput(content)
		if len(warns) > 0 {
			content = clean
			res.warnings = append(res.warnings, warns...)
			if g.metrics != nil {
				for range warns {
					g.metrics.RecordSecurity("output", "redact")
				}
			}
		}
	}

	resp.Content = content
	resp.FinishReason = comp.FinishReason
	resp.Usage = comp.Usage
	resp.Cost = g.cost(decision.Provider, decision.Model, comp.Usage)
	resp.Warnings = res.warnings
	return resp
}

// wrapStream forwards upstream chunks to the caller and finalizes the
// request once the stream drains. Providers do not report usage on streamed
// responses, so output tokens are estimated at roughly four characters per
// token, matching the logging done for non-streaming requests.
func (g *Gateway) wrapStream(
	ctx context.Context,
	cancel context.CancelFunc,
	span trace.Span,
	res *requestResult,
	upstream <-chan providers.StreamChunk,
) <-chan providers.StreamChunk {
	out := make(chan providers.StreamChunk)

	go func() {
		defer close(out)

		var chars int
	forward:
		for chunk := range upstream {
			chars += len(chunk.Content)
			if chunk.Err != nil {
				res.warnings = append(res.warnings, "stream interrupted: "+chunk.Err.Error())
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Consumer is gone; unwind the adapter via the shared
				// context and stop forwarding.
				for range upstream {
				}
				break forward
			}
		}
		if ctx.Err() != nil {
			res.outcome = OutcomeCancelled
		}
		cancel()

		est := chars / 4
		if est == 0 && chars > 0 {
			est = 1
		}
		res.usage.OutputTokens = est
		if m, ok := g.catalog.Get(res.provider, res.model); ok {
			res.costUSD = float64(est) / 1000 * m.CostPer1KOutput
		}
		if est > 0 {
			if g.limiter != nil {
				g.limiter.RecordTokens(context.Background(), res.tenant, int64(est))
			}
			if g.metrics != nil {
				g.metrics.AddTokens(res.provider, res.model, 0, est)
				if res.costUSD > 0 {
					g.metrics.AddCost(res.provider, res.model, res.costUSD)
				}
			}
		}
		g.finish(span, res)
	}()

	return out
}

// recordResult feeds one attempt outcome to the breaker and the
// reliability tracker.
func (g *Gateway) recordResult(provider, model string, success bool, dur time.Duration) {
	if g.breakers != nil {
		g.breakers.OnResult(provider, success)
		g.syncBreakerGauge(provider)
	}
	if g.tracker != nil {
		g.tracker.Record(provider, model, success, float64(dur.Milliseconds()))
	}
}

func (g *Gateway) syncBreakerGauge(provider string) {
	if g.metrics == nil || g.breakers == nil {
		return
	}
	st := g.breakers.State(provider)
	g.metrics.SetBreakerState(provider, int64(st), st.String())
}

// cost converts token usage into USD using the catalog's per-1k rates.
// Unknown models cost zero.
func (g *Gateway) cost(provider, model string, u providers.Usage) Cost {
	m, ok := g.catalog.Get(provider, model)
	if !ok {
		return Cost{}
	}
	in := float64(u.InputTokens) / 1000 * m.CostPer1KInput
	out := float64(u.OutputTokens) / 1000 * m.CostPer1KOutput
	return Cost{Input: in, Output: out, Total: in + out}
}

// retryable reports whether another provider could plausibly serve the
// request after err. Errors without a status are network-level and worth
// retrying.
func retryable(err error) bool {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var sc providers.StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == 429 || code >= 500 || code == 0
	}
	return true
}

// classifyError converts an error into the short category used in log
// fields and metric labels.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	var sc providers.StatusCoder
	if errors.As(err, &sc) {
		return fmt.Sprintf("http_%d", sc.HTTPStatus())
	}
	return "unknown"
}
