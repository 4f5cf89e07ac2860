package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-router/internal/gateway"
	"github.com/nulpointcorp/llm-router/internal/providers"
	"github.com/nulpointcorp/llm-router/internal/routing"
	"github.com/nulpointcorp/llm-router/pkg/apierr"
)

const (
	routeChat = "chat_completions"

	xCacheHIT  = "HIT"
	xCacheMISS = "MISS"
)

// handleChat runs POST /v1/chat/completions. The body is the unified
// request; there is no model field, the router picks one. Responses with
// stream=true are delivered as Server-Sent Events.
func (s *Server) handleChat(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	reqBytes := len(ctx.PostBody())
	streaming := false
	respBytes := -1

	defer func() {
		if s.metrics == nil || streaming {
			return // streaming requests are observed by the stream writer
		}
		if respBytes < 0 {
			respBytes = len(ctx.Response.Body())
		}
		s.metrics.ObserveHTTP(routeChat, ctx.Response.StatusCode(), time.Since(start), reqBytes, respBytes)
	}()

	reqID, _ := ctx.UserValue("request_id").(string)

	var req providers.Request
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if req.ID == "" {
		req.ID = reqID
	}

	resp, err := s.gw.Handle(ctx, &req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	if resp.Stream != nil {
		streaming = true
		writeSSE(ctx, resp, func() {
			if s.metrics != nil {
				s.metrics.ObserveHTTP(routeChat, fasthttp.StatusOK, time.Since(start), reqBytes, -1)
			}
		})
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			"failed to serialize response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}

	if resp.Cached {
		ctx.Response.Header.Set("X-Cache", xCacheHIT)
	} else {
		ctx.Response.Header.Set("X-Cache", xCacheMISS)
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	respBytes = len(body)
}

// writeError maps the pipeline error taxonomy onto HTTP statuses.
//
//	RateLimitedError        → 429 + Retry-After
//	SecurityBlockedError    → 400 security_blocked
//	ErrNoEligibleModel      → 400 no_eligible_model
//	AllProvidersFailedError → 502
//	CancelledError          → 504
//	anything else           → 400 invalid_request
func writeError(ctx *fasthttp.RequestCtx, err error) {
	var (
		rateLimited *gateway.RateLimitedError
		blocked     *gateway.SecurityBlockedError
		allFailed   *gateway.AllProvidersFailedError
		cancelled   *gateway.CancelledError
	)
	switch {
	case errors.As(err, &rateLimited):
		apierr.WriteRateLimited(ctx, rateLimited.RetryAfterMs)
	case errors.As(err, &blocked):
		apierr.WriteSecurityBlocked(ctx, blocked.Stage, blocked.Reason)
	case errors.Is(err, routing.ErrNoEligibleModel):
		apierr.Write(ctx, fasthttp.StatusBadRequest, err.Error(),
			apierr.TypeInvalidRequest, apierr.CodeNoEligibleModel)
	case errors.As(err, &allFailed):
		apierr.WriteProviderFailure(ctx, err.Error())
	case errors.As(err, &cancelled), errors.Is(err, context.DeadlineExceeded):
		apierr.WriteTimeout(ctx)
	default:
		// Empty messages and malformed routing preferences land here.
		apierr.WriteInvalidRequest(ctx, err.Error())
	}
}

// streamEvent is one SSE data payload. The envelope fields repeat on every
// event so consumers can process chunks statelessly.
type streamEvent struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

// writeSSE streams response chunks as Server-Sent Events, closing with a
// [DONE] sentinel. onDone runs once the stream drains.
func writeSSE(ctx *fasthttp.RequestCtx, resp *gateway.Response, onDone func()) {
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Cache", xCacheMISS)
	ctx.SetStatusCode(fasthttp.StatusOK)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() { recover() }() //nolint:errcheck // panic recovery in stream writer

		for chunk := range resp.Stream {
			ev := streamEvent{
				ID:           resp.ID,
				Provider:     resp.Provider,
				Model:        resp.Model,
				Content:      chunk.Content,
				FinishReason: chunk.FinishReason,
			}
			if chunk.Err != nil {
				ev.Error = chunk.Err.Error()
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush() //nolint:errcheck
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush() //nolint:errcheck

		if onDone != nil {
			onDone()
		}
	})
}
