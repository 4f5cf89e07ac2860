// Package anthropic adapts the official Anthropic Go SDK to the router's
// provider contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

type Provider struct {
	baseURL string
	client  anthropic.Client
}

type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}

	httpClient := &http.Client{Timeout: providers.DefaultTimeout}

	p.client = anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(httpClient),
	)

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	// Auth/connectivity check: GET /v1/models
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(1),
	})
	if err != nil {
		return fmt.Errorf("anthropic: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Complete(ctx context.Context, req *providers.Request, model string) (*providers.Completion, error) {
	msg, err := p.client.Messages.New(ctx, buildParams(req, model))
	if err != nil {
		return nil, toProviderError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		switch v := b.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case *anthropic.TextBlock:
			sb.WriteString(v.Text)
		}
	}

	return &providers.Completion{
		Content:      sb.String(),
		FinishReason: string(msg.StopReason),
		Usage: providers.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req *providers.Request, model string) (<-chan providers.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, buildParams(req, model))
	// The request has already been sent; error statuses must fail the
	// attempt here rather than surface mid-stream.
	if err := stream.Err(); err != nil {
		return nil, toProviderError(err)
	}

	ch := make(chan providers.StreamChunk, 64)

	go func() {
		defer close(ch)

		for stream.Next() {
			ev := stream.Current()

			switch eventVariant := ev.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text != "" {
						ch <- providers.StreamChunk{Content: deltaVariant.Text}
					}
				case *anthropic.TextDelta:
					if deltaVariant.Text != "" {
						ch <- providers.StreamChunk{Content: deltaVariant.Text}
					}
				}
			case anthropic.MessageDeltaEvent:
				if reason := string(eventVariant.Delta.StopReason); reason != "" {
					ch <- providers.StreamChunk{FinishReason: reason}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- providers.StreamChunk{Err: toProviderError(err)}
		}
	}()

	return ch, nil
}

func buildParams(req *providers.Request, model string) anthropic.MessageNewParams {
	var systemPrompt string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))

	// Anthropic takes system instructions as a top-level field, not as
	// conversation turns.
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Text()
		default:
			msgs = append(msgs, toSDKMessage(m.Role, m.Text()))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	return params
}

func toSDKMessage(role, content string) anthropic.MessageParam {
	r := strings.ToLower(role)
	anthRole := anthropic.MessageParamRoleUser
	if r == "assistant" {
		anthRole = anthropic.MessageParamRoleAssistant
	}

	return anthropic.MessageParam{
		Role: anthRole,
		Content: []anthropic.ContentBlockParamUnion{
			{
				OfText: &anthropic.TextBlockParam{
					Text: content,
				},
			},
		},
	}
}

func toProviderError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Type:       "anthropic_error",
			Message:    apierr.Error(),
		}
	}
	return err
}
