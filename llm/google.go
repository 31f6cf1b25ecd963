package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider talks to Gemini. It holds a client connection, so callers
// release it with Close.
type GoogleProvider struct {
	client    *genai.Client
	model     string
	maxTokens int
	retry     RetryConfig
}

func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	if err := cfg.requireHosted(ProviderGoogle); err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}
	return &GoogleProvider{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, retry: cfg.Retry}, nil
}

func (p *GoogleProvider) Name() string { return ProviderGoogle }

func (p *GoogleProvider) Close() error { return p.client.Close() }

func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	// GenerativeModel handles are not shared between calls; each one
	// carries its own system instruction.
	model := p.client.GenerativeModel(p.model)
	limit := int32(req.tokens(p.maxTokens))
	model.MaxOutputTokens = &limit
	if sys := req.SystemText(); sys != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(sys))
	}

	var gen *genai.GenerateContentResponse
	if err := withRetry(ctx, p.retry, ProviderGoogle, func() (err error) {
		gen, err = model.GenerateContent(ctx, genai.Text(req.UserText()))
		return err
	}); err != nil {
		return nil, err
	}

	out := &ChatResponse{Model: p.model}
	if usage := gen.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}
	if len(gen.Candidates) == 0 {
		return out, nil
	}
	c := gen.Candidates[0]
	if c.FinishReason != genai.FinishReasonUnspecified {
		out.StopReason = c.FinishReason.String()
	}
	if c.Content != nil {
		var text strings.Builder
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		out.Content = text.String()
	}
	return out, nil
}
