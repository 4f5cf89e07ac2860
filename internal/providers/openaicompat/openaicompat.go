// Package openaicompat provides a generic OpenAI-compatible LLM provider.
// Use it for any service that implements the OpenAI chat completions API
// (xAI, Groq, DeepSeek, Together AI, Ollama, Perplexity, Cerebras, etc.).
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

// Provider is a configurable OpenAI-compatible LLM provider.
type Provider struct {
	name    string
	baseURL string
	client  openaiSDK.Client
}

// New creates a new OpenAI-compatible Provider.
//
//   - name    — unique provider identifier used for routing and logs.
//   - apiKey  — API key sent as "Authorization: Bearer <key>"; may be empty
//     for local servers such as Ollama.
//   - baseURL — API base URL, e.g. "https://api.x.ai/v1".
func New(name, apiKey, baseURL string) *Provider {
	p := &Provider{
		name:    name,
		baseURL: baseURL,
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.DefaultTimeout}),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}

	p.client = openaiSDK.NewClient(opts...)
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, p.toProviderError(err))
	}
	return nil
}

func (p *Provider) Complete(ctx context.Context, req *providers.Request, model string) (*providers.Completion, error) {
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.toProviderError(err)
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
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	// Error statuses from the already-sent request must fail the attempt
	// here rather than surface mid-stream.
	if err := stream.Err(); err != nil {
		return nil, p.toProviderError(err)
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
			ch <- providers.StreamChunk{Err: p.toProviderError(err)}
		}
	}()

	return ch, nil
}

func (p *Provider) buildParams(req *providers.Request, model string) (openaiSDK.ChatCompletionNewParams, error) {
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

	for _, d := range req.Tools {
		fn := shared.FunctionDefinitionParam{Name: d.Name}
		if d.Description != "" {
			fn.Description = openaiSDK.String(d.Description)
		}
		if len(d.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return params, fmt.Errorf("tool %q: invalid parameters schema: %w", d.Name, err)
			}
			fn.Parameters = schema
		}
		params.Tools = append(params.Tools, openaiSDK.ChatCompletionFunctionTool(fn))
	}

	return params, nil
}

func (p *Provider) toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   p.name,
			StatusCode: apierr.StatusCode,
			Type:       "api_error",
			Message:    apierr.Error(),
		}
	}
	return err
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "developer":
		return openaiSDK.DeveloperMessage(content)
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}
