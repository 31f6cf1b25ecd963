package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenClawURL is the agent server used when no base URL is set.
	DefaultOpenClawURL = "http://localhost:3001"

	// openClawFallback is returned when the agent replies without a message.
	openClawFallback = "OpenClaw completed task."
)

// OpenClawProvider posts the prompt to an OpenClaw agent server.
type OpenClawProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
}

type openClawRequest struct {
	Message string `json:"message"`
}

type openClawResponse struct {
	Message string `json:"message"`
}

// NewOpenClawProvider creates a provider for POST <base>/agent/run.
func NewOpenClawProvider(cfg Config) *OpenClawProvider {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultOpenClawURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenClawProvider{
		baseURL:    strings.TrimSuffix(base, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      cfg.Retry,
	}
}

// Name implements Provider.
func (p *OpenClawProvider) Name() string { return ProviderOpenClaw }

// Chat implements Provider.
func (p *OpenClawProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(openClawRequest{Message: req.UserText()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out openClawResponse
	err = withRetry(ctx, p.retry, "openclaw", func() error {
		return p.doRequest(ctx, body, &out)
	})
	if err != nil {
		return nil, err
	}

	content := out.Message
	if content == "" {
		content = openClawFallback
	}
	return &ChatResponse{Content: content, Model: ProviderOpenClaw}, nil
}

func (p *OpenClawProvider) doRequest(ctx context.Context, body []byte, out *openClawResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/agent/run", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
