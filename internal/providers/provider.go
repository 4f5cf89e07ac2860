// Package providers defines the common interfaces and types used by all LLM
// provider adapters (OpenAI, Anthropic, Gemini, and OpenAI-compatible
// services).
//
// Each adapter lives in its own sub-package and implements the Provider
// interface. The gateway never talks to an SDK directly; it dispatches
// through this contract so that routing, failover and reliability tracking
// stay provider-agnostic.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type (
	// ContentBlock is one element of a structured message body. Text blocks
	// carry Text; non-text blocks (images, documents) carry an opaque Data
	// payload that passes through masking untouched.
	ContentBlock struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
		Data string `json:"data,omitempty"`
	}

	// Message is a single turn in a conversation. Content holds plain text;
	// Blocks, when non-empty, holds structured content and takes precedence.
	Message struct {
		Role    string         `json:"role"`
		Content string         `json:"content,omitempty"`
		Blocks  []ContentBlock `json:"blocks,omitempty"`
	}

	// ToolDef describes a tool the model may call. Parameters is a raw JSON
	// schema forwarded to the provider as-is.
	ToolDef struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	}

	// Preferences are the caller's routing hints. All fields are optional.
	Preferences struct {
		Strategy             string   `json:"strategy,omitempty"`
		PreferredProviders   []string `json:"preferred_providers,omitempty"`
		ExcludeProviders     []string `json:"exclude_providers,omitempty"`
		RequiredCapabilities []string `json:"required_capabilities,omitempty"`
		MaxLatencyMs         int      `json:"max_latency_ms,omitempty"`
		MaxCostUSD           float64  `json:"max_cost_usd,omitempty"`
	}

	// Request is the unified chat-completion request accepted by the gateway.
	// There is no model field: the router picks the model. ID is caller
	// supplied and opaque; the gateway generates one when absent.
	Request struct {
		ID          string       `json:"id,omitempty"`
		Messages    []Message    `json:"messages"`
		Tools       []ToolDef    `json:"tools,omitempty"`
		Temperature float64      `json:"temperature,omitempty"`
		MaxTokens   int          `json:"max_tokens,omitempty"`
		Stream      bool         `json:"stream,omitempty"`
		Preferences *Preferences `json:"preferences,omitempty"`
		Tenant      string       `json:"tenant,omitempty"`
		Tags        []string     `json:"tags,omitempty"`
	}

	// Usage — token usage stats.
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	}

	// Completion is a finished (non-streaming) provider response.
	Completion struct {
		Content      string `json:"content"`
		FinishReason string `json:"finish_reason,omitempty"`
		Usage        Usage  `json:"usage"`
	}

	// StreamChunk is a single delta delivered during a streaming response.
	// A terminal chunk carries either FinishReason or Err; the channel is
	// closed after it. Callers observe first-token latency by timing the
	// first chunk received.
	StreamChunk struct {
		Content      string `json:"content,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
		Err          error  `json:"-"`
	}
)

// Provider — LLM provider adapter interface. Complete and Stream must honor
// ctx cancellation and return errors that carry a retryable hint (see
// ProviderError) where the upstream status is known.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request, model string) (*Completion, error)
	Stream(ctx context.Context, req *Request, model string) (<-chan StreamChunk, error)
	HealthCheck(ctx context.Context) error
}

// DefaultTimeout bounds a single provider call when the caller supplied no
// deadline.
const DefaultTimeout = 30 * time.Second

// Text returns the message's textual content: Content when set, otherwise
// the concatenation of its text blocks.
func (m Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	var s string
	for _, b := range m.Blocks {
		if b.Type != "text" {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += b.Text
	}
	return s
}

// Clone returns a deep copy of the request. Mutating the copy's messages,
// blocks, tools or preferences leaves the original untouched.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		cm := m
		if len(m.Blocks) > 0 {
			cm.Blocks = make([]ContentBlock, len(m.Blocks))
			copy(cm.Blocks, m.Blocks)
		}
		cp.Messages[i] = cm
	}
	if len(r.Tools) > 0 {
		cp.Tools = make([]ToolDef, len(r.Tools))
		copy(cp.Tools, r.Tools)
	}
	if len(r.Tags) > 0 {
		cp.Tags = make([]string, len(r.Tags))
		copy(cp.Tags, r.Tags)
	}
	if r.Preferences != nil {
		p := *r.Preferences
		p.PreferredProviders = append([]string(nil), r.Preferences.PreferredProviders...)
		p.ExcludeProviders = append([]string(nil), r.Preferences.ExcludeProviders...)
		p.RequiredCapabilities = append([]string(nil), r.Preferences.RequiredCapabilities...)
		cp.Preferences = &p
	}
	return &cp
}

// ProviderError is the normalized error returned by adapters when the
// upstream service answered with a failure status.
type ProviderError struct {
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

// HTTPStatus implements StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// Retryable reports whether trying another provider can plausibly help:
// true for rate limiting and server-side failures, false for client errors
// (the same request would fail everywhere).
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}
