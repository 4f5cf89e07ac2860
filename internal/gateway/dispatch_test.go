package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nulpointcorp/llm-router/internal/breaker"
	"github.com/nulpointcorp/llm-router/internal/catalog"
	"github.com/nulpointcorp/llm-router/internal/metrics"
	"github.com/nulpointcorp/llm-router/internal/providers"
	"github.com/nulpointcorp/llm-router/internal/ratelimit"
)

// tokenRecorder is a RateLimiter double that allows every request and
// reports RecordTokens calls on a channel.
type tokenRecorder struct {
	tokens chan int64
}

func (r *tokenRecorder) Check(context.Context, string) ratelimit.Decision {
	return ratelimit.Decision{Allowed: true}
}

func (r *tokenRecorder) RecordTokens(_ context.Context, _ string, n int64) {
	r.tokens <- n
}

func TestHandleFailoverToSecondProvider(t *testing.T) {
	reg := metrics.New()
	provA := failingProvider("providerA", 503)
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
		Metrics:   reg,
	})

	resp, err := gw.Handle(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if resp.Provider != "providerB" || resp.Model != "model-b" {
		t.Fatalf("served by %s/%s, want providerB/model-b", resp.Provider, resp.Model)
	}
	if resp.Routing == nil || resp.Routing.Provider != "providerB" {
		t.Errorf("routing = %+v, want the serving decision", resp.Routing)
	}
	if len(resp.Attempts) != 1 {
		t.Fatalf("attempts = %+v, want exactly the failed providerA attempt", resp.Attempts)
	}
	at := resp.Attempts[0]
	if at.Provider != "providerA" || at.Model != "model-a" {
		t.Errorf("attempt = %s/%s, want providerA/model-a", at.Provider, at.Model)
	}
	if at.Error == "" || at.BreakerRejected {
		t.Errorf("attempt = %+v, want a provider error without breaker rejection", at)
	}

	if got := counterValue(t, reg, "gateway_failover_events_total",
		map[string]string{"from": "providerA", "to": "providerB"}); got != 1 {
		t.Errorf("gateway_failover_events_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "gateway_failover_success_total",
		map[string]string{"primary": "providerA", "to": "providerB"}); got != 1 {
		t.Errorf("gateway_failover_success_total = %v, want 1", got)
	}
}

func TestHandleAllProvidersFailed(t *testing.T) {
	reg := metrics.New()
	provA := failingProvider("providerA", 502)
	provB := failingProvider("providerB", 503)
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
		Metrics:   reg,
	})

	_, err := gw.Handle(context.Background(), userRequest("hi"))

	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("err = %v, want AllProvidersFailedError", err)
	}
	if len(all.Attempts) != 2 {
		t.Fatalf("attempts = %+v, want one per eligible provider", all.Attempts)
	}
	seen := map[string]bool{}
	for _, at := range all.Attempts {
		if seen[at.Provider] {
			t.Errorf("provider %s attempted twice", at.Provider)
		}
		seen[at.Provider] = true
	}
	if provA.calls.Load() != 1 || provB.calls.Load() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", provA.calls.Load(), provB.calls.Load())
	}
	if got := counterValue(t, reg, "gateway_failover_exhausted_total", nil); got != 1 {
		t.Errorf("gateway_failover_exhausted_total = %v, want 1", got)
	}
}

func TestHandleNonRetryableStopsFailover(t *testing.T) {
	provA := failingProvider("providerA", 401)
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
	})

	_, err := gw.Handle(context.Background(), userRequest("hi"))

	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("err = %v, want AllProvidersFailedError", err)
	}
	if len(all.Attempts) != 1 {
		t.Errorf("attempts = %+v, want only the auth failure", all.Attempts)
	}
	if provB.calls.Load() != 0 {
		t.Errorf("providerB called %d times after a non-retryable error", provB.calls.Load())
	}
}

func TestHandleDisableFallback(t *testing.T) {
	provA := failingProvider("providerA", 500)
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers:       map[string]providers.Provider{"providerA": provA, "providerB": provB},
		DisableFallback: true,
	})

	_, err := gw.Handle(context.Background(), userRequest("hi"))

	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("err = %v, want AllProvidersFailedError", err)
	}
	if len(all.Attempts) != 1 {
		t.Errorf("attempts = %+v, want a single attempt", all.Attempts)
	}
	if provB.calls.Load() != 0 {
		t.Errorf("providerB called %d times with fallback disabled", provB.calls.Load())
	}
}

func TestHandleBreakerOpenSkipsProvider(t *testing.T) {
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 2, OpenDuration: time.Minute}, nil)
	breakers.OnResult("providerA", false)
	breakers.OnResult("providerA", false)
	if breakers.State("providerA") != breaker.StateOpen {
		t.Fatal("breaker not open after threshold failures")
	}

	reg := metrics.New()
	provA := okProvider("providerA")
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
		Breakers:  breakers,
		Metrics:   reg,
	})

	resp, err := gw.Handle(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Provider != "providerB" {
		t.Fatalf("served by %s, want providerB", resp.Provider)
	}
	if provA.calls.Load() != 0 {
		t.Errorf("open provider called %d times", provA.calls.Load())
	}
	if len(resp.Attempts) != 1 || !resp.Attempts[0].BreakerRejected {
		t.Fatalf("attempts = %+v, want one breaker rejection", resp.Attempts)
	}
	if got := counterValue(t, reg, "gateway_circuit_breaker_rejections_total",
		map[string]string{"provider": "providerA"}); got != 1 {
		t.Errorf("gateway_circuit_breaker_rejections_total = %v, want 1", got)
	}
}

func TestHandleBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, OpenDuration: time.Minute}, nil)
	provA := failingProvider("providerA", 500)
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
		Breakers:  breakers,
	})

	for i := 0; i < 5; i++ {
		resp, err := gw.Handle(context.Background(), userRequest("hi"))
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if resp.Provider != "providerB" {
			t.Fatalf("request %d served by %s, want providerB", i+1, resp.Provider)
		}
		if len(resp.Attempts) != 1 || resp.Attempts[0].BreakerRejected {
			t.Fatalf("request %d attempts = %+v, want one real providerA failure", i+1, resp.Attempts)
		}
	}
	if breakers.State("providerA") != breaker.StateOpen {
		t.Fatalf("breaker state = %v after 5 failures, want open", breakers.State("providerA"))
	}

	resp, err := gw.Handle(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("request after trip: %v", err)
	}
	if provA.calls.Load() != 5 {
		t.Errorf("providerA called %d times, want 5 (none after the trip)", provA.calls.Load())
	}
	if len(resp.Attempts) != 1 || !resp.Attempts[0].BreakerRejected {
		t.Errorf("attempts = %+v, want one breaker rejection", resp.Attempts)
	}
}

func TestHandleMissingAdapterFallsBack(t *testing.T) {
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerB": provB},
	})

	resp, err := gw.Handle(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Provider != "providerB" {
		t.Fatalf("served by %s, want providerB", resp.Provider)
	}
	if len(resp.Attempts) != 1 || resp.Attempts[0].Error != "no adapter configured" {
		t.Errorf("attempts = %+v, want a missing-adapter entry", resp.Attempts)
	}
}

// The caller deadline bounds the whole chain: an attempt that consumes it
// leaves nothing for fallback, and Handle returns promptly.
func TestHandleDeadlineSharedAcrossAttempts(t *testing.T) {
	block := func(ctx context.Context, _ *providers.Request, _ string) (*providers.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	tracker := catalog.NewTracker()
	provA := &funcProvider{name: "providerA", completeFn: block}
	provB := &funcProvider{name: "providerB", completeFn: block}
	gw := newTestGateway(t, Options{
		Tracker:   tracker,
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gw.Handle(ctx, userRequest("hi"))
	elapsed := time.Since(start)

	var cancelled *CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("err = %v, want CancelledError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want a deadline-exceeded cause", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Handle returned after %v, deadline was 60ms", elapsed)
	}
	if provB.calls.Load() != 0 {
		t.Errorf("providerB called %d times; the first attempt consumed the deadline", provB.calls.Load())
	}

	// The cut-off attempt still counts against providerA's record.
	snap, ok := tracker.Get("providerA", "model-a")
	if !ok {
		t.Fatal("no reliability record for the cancelled attempt")
	}
	if snap.TotalRequests != 1 || snap.SuccessRate != 0.9 {
		t.Errorf("snapshot = %+v, want one failed request", snap)
	}
}

func TestHandleStreamingFinalizesTokens(t *testing.T) {
	rec := &tokenRecorder{tokens: make(chan int64, 1)}
	prov := &funcProvider{
		name: "providerA",
		streamFn: func(context.Context, *providers.Request, string) (<-chan providers.StreamChunk, error) {
			ch := make(chan providers.StreamChunk, 3)
			ch <- providers.StreamChunk{Content: "hello "}
			ch <- providers.StreamChunk{Content: "world!"}
			ch <- providers.StreamChunk{FinishReason: "stop"}
			close(ch)
			return ch, nil
		},
	}
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": prov, "providerB": okProvider("providerB")},
		Limiter:   rec,
	})

	req := userRequest("stream please")
	req.Stream = true
	resp, err := gw.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Stream == nil {
		t.Fatal("response has no stream")
	}
	if resp.Content != "" {
		t.Errorf("streaming response carries content %q", resp.Content)
	}

	var got strings.Builder
	var finish string
	for chunk := range resp.Stream {
		got.WriteString(chunk.Content)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if got.String() != "hello world!" {
		t.Errorf("streamed content = %q", got.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q, want stop", finish)
	}

	// 12 characters is roughly 3 tokens at the 4-chars-per-token estimate.
	select {
	case n := <-rec.tokens:
		if n != 3 {
			t.Errorf("recorded %d output tokens, want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream finalization never recorded tokens")
	}
}

func TestHandleStreamUpstreamSetupFailure(t *testing.T) {
	provA := &funcProvider{
		name: "providerA",
		streamFn: func(context.Context, *providers.Request, string) (<-chan providers.StreamChunk, error) {
			return nil, &providers.ProviderError{Provider: "providerA", StatusCode: 500, Message: "stream refused"}
		},
	}
	provB := okProvider("providerB")
	gw := newTestGateway(t, Options{
		Providers: map[string]providers.Provider{"providerA": provA, "providerB": provB},
	})

	req := userRequest("stream please")
	req.Stream = true
	resp, err := gw.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Provider != "providerB" {
		t.Fatalf("served by %s, want providerB after stream setup failure", resp.Provider)
	}
	if resp.Stream == nil {
		t.Fatal("fallback response has no stream")
	}
	for range resp.Stream {
	}
	if len(resp.Attempts) != 1 || resp.Attempts[0].Provider != "providerA" {
		t.Errorf("attempts = %+v, want the providerA stream failure", resp.Attempts)
	}
}
