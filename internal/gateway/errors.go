package gateway

import (
	"errors"
	"fmt"
)

// ErrNoMessages rejects requests with an empty message list before any
// pipeline stage runs.
var ErrNoMessages = errors.New("gateway: request must contain at least one message")

// RateLimitedError is returned when the caller's key exceeded its window.
// RetryAfterMs is the remaining time until the window resets.
type RateLimitedError struct {
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("gateway: rate limit exceeded, retry after %dms", e.RetryAfterMs)
}

// SecurityBlockedError is returned when the security guard blocked the
// request. Stage is "pii" or "injection".
type SecurityBlockedError struct {
	Stage  string
	Reason string
}

func (e *SecurityBlockedError) Error() string {
	return "gateway: request blocked: " + e.Reason
}

// Attempt records one unsuccessful dispatch attempt. BreakerRejected marks
// synthetic failures where the provider was never called.
type Attempt struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	LatencyMs       int64  `json:"latency_ms"`
	Error           string `json:"error,omitempty"`
	BreakerRejected bool   `json:"breaker_rejected,omitempty"`
}

// AllProvidersFailedError is returned when the dispatch loop exhausted the
// decision chain. Err is the last provider error observed.
type AllProvidersFailedError struct {
	Attempts []Attempt
	Err      error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("gateway: all providers failed after %d attempt(s): %v", len(e.Attempts), e.Err)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Err }

// CancelledError is returned when the request deadline expired or the
// caller cancelled mid-dispatch.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return "gateway: request cancelled: " + e.Err.Error()
}

func (e *CancelledError) Unwrap() error { return e.Err }
