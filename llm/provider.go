// Package llm provides the model backends a worker uses to produce a
// delivery summary.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider names.
const (
	ProviderEcho      = "echo"
	ProviderOllama    = "ollama"
	ProviderLlamaCpp  = "llamacpp"
	ProviderOpenClaw  = "openclaw"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Message represents an LLM message.
type Message struct {
	Role    string `json:"role"` // user, system
	Content string `json:"content"`
}

// ChatRequest represents a chat request to the LLM.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Prompt builds a single-turn request.
func Prompt(text string) ChatRequest {
	return ChatRequest{Messages: []Message{{Role: "user", Content: text}}}
}

// UserText joins the user messages of a request.
func (r ChatRequest) UserText() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != "user" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// SystemText returns the first system message, if any.
func (r ChatRequest) SystemText() string {
	for _, m := range r.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// ChatResponse represents a chat response from the LLM.
type ChatResponse struct {
	Content      string `json:"content"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// Provider is the interface for LLM providers.
type Provider interface {
	// Name returns the provider name, e.g. "anthropic".
	Name() string

	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	APIKey    string        `json:"api_key"`
	BaseURL   string        `json:"base_url"` // Custom API endpoint; OpenClaw server URL
	Bin       string        `json:"bin"`      // Executable for CLI providers
	MaxTokens int           `json:"max_tokens"`
	Timeout   time.Duration `json:"timeout"`
	Retry     RetryConfig   `json:"retry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderEcho, "":
		return nil
	case ProviderOllama, ProviderLlamaCpp:
		if c.Model == "" {
			return fmt.Errorf("model is required for %s", c.Provider)
		}
	case ProviderOpenClaw:
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		return c.requireHosted(c.Provider)
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}
	return nil
}

// requireHosted checks the settings every hosted API needs.
func (c *Config) requireHosted(name string) error {
	switch {
	case c.Model == "":
		return fmt.Errorf("model is required for %s", name)
	case c.APIKey == "":
		return fmt.Errorf("api key is required for %s", name)
	case c.MaxTokens <= 0:
		return fmt.Errorf("max_tokens is required for %s", name)
	}
	return nil
}

// tokens returns the request limit, falling back to the configured one.
func (r ChatRequest) tokens(configured int) int64 {
	if r.MaxTokens > 0 {
		return int64(r.MaxTokens)
	}
	return int64(configured)
}

// --- Mock Provider for Testing ---

// MockProvider is a mock LLM provider for testing.
type MockProvider struct {
	mu          sync.Mutex
	response    string
	err         error
	lastRequest *ChatRequest
	callCount   int

	// ChatFunc can be overridden for custom behavior
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name implements Provider.
func (p *MockProvider) Name() string { return "mock" }

// SetResponse sets the response content.
func (p *MockProvider) SetResponse(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = content
}

// SetError sets an error to return.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// LastRequest returns the last request.
func (p *MockProvider) LastRequest() *ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Chat implements the Provider interface.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.callCount++
	p.lastRequest = &req
	fn, resp, err := p.ChatFunc, p.response, p.err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Content: resp, Model: "mock-model", StopReason: "end_turn"}, nil
}
