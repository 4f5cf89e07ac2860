// Package apierr provides the structured error envelope returned to clients
// and helpers that map gateway error types to HTTP statuses.
package apierr

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
)

// Error type constants.
const (
	TypeProviderError   = "provider_error"
	TypeRateLimitError  = "rate_limit_error"
	TypeInvalidRequest  = "invalid_request_error"
	TypeSecurityBlocked = "security_blocked"
	TypeServerError     = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeInternalError      = "internal_error"
	CodeAllProvidersFailed = "all_providers_failed"
	CodeRequestTimeout     = "request_timeout"
	CodeInvalidRequest     = "invalid_request"
	CodeNoEligibleModel    = "no_eligible_model"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteInvalidRequest writes a 400 for malformed or unroutable requests.
func WriteInvalidRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeInvalidRequest, CodeInvalidRequest)
}

// WriteSecurityBlocked writes a 400 for requests rejected by the security
// guard. stage identifies the check that fired ("pii" or "injection").
func WriteSecurityBlocked(ctx *fasthttp.RequestCtx, stage, reason string) {
	Write(ctx, fasthttp.StatusBadRequest, reason, TypeSecurityBlocked, stage+"_blocked")
}

// WriteRateLimited writes a 429 with a Retry-After header derived from the
// limiter's window reset. The header is whole seconds, rounded up, never
// below one.
func WriteRateLimited(ctx *fasthttp.RequestCtx, retryAfterMs int64) {
	secs := (retryAfterMs + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	ctx.Response.Header.Set("Retry-After", strconv.FormatInt(secs, 10))
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}

// WriteProviderFailure writes a 502 after every candidate provider failed.
func WriteProviderFailure(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadGateway, message, TypeProviderError, CodeAllProvidersFailed)
}

// WriteTimeout writes a 504 for requests cancelled by deadline.
func WriteTimeout(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusGatewayTimeout, "request timed out", TypeProviderError, CodeRequestTimeout)
}

// WriteInternal writes a 500 for unexpected server-side failures.
func WriteInternal(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusInternalServerError, "internal server error", TypeServerError, CodeInternalError)
}
