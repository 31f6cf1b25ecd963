package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider uses chat completions. BaseURL may point at any
// compatible server.
type OpenAIProvider struct {
	client    openai.Client
	model     shared.ChatModel
	maxTokens int
	retry     RetryConfig
}

func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if err := cfg.requireHosted(ProviderOpenAI); err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     shared.ChatModel(cfg.Model),
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if sys := req.SystemText(); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	params := openai.ChatCompletionNewParams{
		Model:     p.model,
		Messages:  append(messages, openai.UserMessage(req.UserText())),
		MaxTokens: openai.Int(req.tokens(p.maxTokens)),
	}

	var completion *openai.ChatCompletion
	if err := withRetry(ctx, p.retry, ProviderOpenAI, func() (err error) {
		completion, err = p.client.Chat.Completions.New(ctx, params)
		return err
	}); err != nil {
		return nil, err
	}

	out := &ChatResponse{
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	if len(completion.Choices) > 0 {
		out.Content = completion.Choices[0].Message.Content
		out.StopReason = string(completion.Choices[0].FinishReason)
	}
	return out, nil
}
