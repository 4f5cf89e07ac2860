// Package gemini adapts the official Google GenAI SDK to the router's
// provider contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/nulpointcorp/llm-router/internal/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = "gemini"
)

type Provider struct {
	baseURL string
	client  *genai.Client
}

type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}

	base, ver := splitBaseURLAndVersion(p.baseURL)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: providers.DefaultTimeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: base, APIVersion: ver},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: client: %w", err)
	}
	p.client = client

	return p, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return fmt.Errorf("gemini: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Complete(ctx context.Context, req *providers.Request, model string) (*providers.Completion, error) {
	contents, cfg := buildContentsAndConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, toProviderError(err)
	}

	var content, finish string
	if resp != nil {
		content = resp.Text()
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			finish = string(resp.Candidates[0].FinishReason)
		}
	}

	var inTok, outTok int
	if resp != nil && resp.UsageMetadata != nil {
		inTok = int(resp.UsageMetadata.PromptTokenCount)
		outTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &providers.Completion{
		Content:      content,
		FinishReason: finish,
		Usage: providers.Usage{
			InputTokens:  inTok,
			OutputTokens: outTok,
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req *providers.Request, model string) (<-chan providers.StreamChunk, error) {
	contents, cfg := buildContentsAndConfig(req)

	next, stop := iter.Pull2(p.client.Models.GenerateContentStream(ctx, model, contents, cfg))

	// Pull the first response before returning so connection refusals and
	// error statuses fail the attempt instead of surfacing mid-stream.
	first, err, ok := next()
	if err != nil {
		stop()
		return nil, toProviderError(err)
	}

	ch := make(chan providers.StreamChunk, 64)

	go func() {
		defer close(ch)
		defer stop()

		resp, rerr, valid := first, err, ok
		for valid {
			if rerr != nil {
				ch <- providers.StreamChunk{Err: toProviderError(rerr)}
				return
			}
			if chunk, emit := toStreamChunk(resp); emit {
				ch <- chunk
			}
			resp, rerr, valid = next()
		}
	}()

	return ch, nil
}

func buildContentsAndConfig(req *providers.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var systemPrompt string
	contents := make([]*genai.Content, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += m.Text()

		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Text(), genai.RoleModel))

		default: // user / unknown
			contents = append(contents, genai.NewContentFromText(m.Text(), genai.RoleUser))
		}
	}

	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" || req.Temperature > 0 || req.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{}
	}

	if cfg != nil && systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	if cfg != nil && req.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(req.Temperature))
	}

	if cfg != nil && req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	return contents, cfg
}

func toStreamChunk(resp *genai.GenerateContentResponse) (providers.StreamChunk, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return providers.StreamChunk{}, false
	}

	c := resp.Candidates[0]
	text := candidateText(c)
	finish := string(c.FinishReason)
	if text == "" && finish == "" {
		return providers.StreamChunk{}, false
	}

	return providers.StreamChunk{Content: text, FinishReason: finish}, true
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil || len(c.Content.Parts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func splitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]

	if looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return false
	}
	// "v" followed by a digit, e.g. v1, v1beta
	return s[1] >= '0' && s[1] <= '9'
}

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Type:       apiErr.Status,
			Message:    apiErr.Message,
		}
	}
	return err
}
