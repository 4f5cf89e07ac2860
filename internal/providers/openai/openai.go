// Package openai adapts the official OpenAI Go SDK to the router's
// provider contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

type Provider struct {
	baseURL string
	client  openaiSDK.Client
}

type Option func(*Provider)

// WithBaseURL points the adapter at a non-default endpoint, e.g. the mock
// upstream or a regional gateway.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{baseURL: defaultBaseURL}

	for _, o := range opts {
		o(p)
	}

	httpClient := &http.Client{Timeout: providers.DefaultTimeout}
	if p.baseURL != "" && p.baseURL != defaultBaseURL {
		httpClient.Transport = newBaseURLTransport(http.DefaultTransport, p.baseURL)
	}

	p.client = openaiSDK.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	)

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Complete(ctx context.Context, req *providers.Request, model string) (*providers.Completion, error) {
	params, err := buildChatCompletionParams(req, model)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	var content, finish string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finish = string(resp.Choices[0].FinishReason)
	}

	return &providers.Completion{
		Content:      content,
		FinishReason: finish,
		Usage: providers.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req *providers.Request, model string) (<-chan providers.StreamChunk, error) {
	params, err := buildChatCompletionParams(req, model)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	// The POST has already happened; a refused connection or error status
	// must fail the attempt, not surface mid-stream.
	if err := stream.Err(); err != nil {
		return nil, toProviderError(err)
	}

	ch := make(chan providers.StreamChunk, 64)

	go func() {
		defer close(ch)

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			c := chunk.Choices[0]
			if c.Delta.Content == "" && c.FinishReason == "" {
				continue
			}
			ch <- providers.StreamChunk{
				Content:      c.Delta.Content,
				FinishReason: c.FinishReason,
			}
		}

		if err := stream.Err(); err != nil {
			ch <- providers.StreamChunk{Err: toProviderError(err)}
		}
	}()

	return ch, nil
}

func buildChatCompletionParams(req *providers.Request, model string) (openaiSDK.ChatCompletionNewParams, error) {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Text()))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}

	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools, err := toSDKTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}

	return params, nil
}

func toSDKTools(defs []providers.ToolDef) ([]openaiSDK.ChatCompletionToolUnionParam, error) {
	tools := make([]openaiSDK.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		fn := shared.FunctionDefinitionParam{Name: d.Name}
		if d.Description != "" {
			fn.Description = openaiSDK.String(d.Description)
		}
		if len(d.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %q: invalid parameters schema: %w", d.Name, err)
			}
			fn.Parameters = schema
		}
		tools = append(tools, openaiSDK.ChatCompletionFunctionTool(fn))
	}
	return tools, nil
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "developer":
		return openaiSDK.DeveloperMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	case "user":
		fallthrough
	default:
		return openaiSDK.UserMessage(content)
	}
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Type:       "openai_error",
			Message:    apierr.Error(),
		}
	}
	return err
}

type baseURLTransport struct {
	base *url.URL
	rt   http.RoundTripper
}

func newBaseURLTransport(next http.RoundTripper, base string) http.RoundTripper {
	u, err := url.Parse(base)
	if err != nil {
		return next
	}
	return &baseURLTransport{base: u, rt: next}
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	u2 := *req.URL

	u2.Scheme = t.base.Scheme
	u2.Host = t.base.Host

	basePath := strings.TrimRight(t.base.Path, "/")
	if basePath != "" && basePath != "/" {
		if !strings.HasPrefix(u2.Path, basePath+"/") && u2.Path != basePath {
			u2.Path = basePath + "/" + strings.TrimLeft(u2.Path, "/")
		}
	}

	r2.URL = &u2

	return t.rt.RoundTrip(r2)
}
