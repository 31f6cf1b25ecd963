package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider sends single-turn requests to the Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int
	retry     RetryConfig
}

func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if err := cfg.requireHosted(ProviderAnthropic); err != nil {
		return nil, err
	}
	// withRetry owns retries, so the SDK's own are off.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: req.tokens(p.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText()))},
	}
	if sys := req.SystemText(); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	var msg *anthropic.Message
	if err := withRetry(ctx, p.retry, ProviderAnthropic, func() (err error) {
		msg, err = p.client.Messages.New(ctx, params)
		return err
	}); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ChatResponse{
		Content:      text.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Model:        string(msg.Model),
	}, nil
}
