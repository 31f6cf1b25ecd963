package llm

import (
	"context"
	"fmt"
	"strings"
)

// EchoProvider never calls a model. Workers use it to exercise the task
// protocol without an LLM.
type EchoProvider struct{}

// Name implements Provider.
func (EchoProvider) Name() string { return ProviderEcho }

// Chat implements Provider by returning an empty response.
func (EchoProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ChatResponse{Model: ProviderEcho}, nil
}

// New creates the provider named by cfg.Provider. An empty provider name
// is inferred from the model, falling back to echo.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		cfg.Provider = InferProviderFromModel(cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderEcho:
		return EchoProvider{}, nil
	case ProviderOllama:
		return NewOllamaProvider(cfg), nil
	case ProviderLlamaCpp:
		return NewLlamaCppProvider(cfg), nil
	case ProviderOpenClaw:
		return NewOpenClawProvider(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderGoogle:
		return NewGoogleProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// InferProviderFromModel guesses a hosted provider from a model name.
func InferProviderFromModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case m == "":
		return ProviderEcho
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "gemini"):
		return ProviderGoogle
	default:
		return ProviderOllama
	}
}

// Close releases provider resources, if the provider holds any.
func Close(p Provider) error {
	if tp, ok := p.(*TracingProvider); ok {
		p = tp.provider
	}
	if c, ok := p.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
