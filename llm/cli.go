package llm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultCLITimeout bounds a local model run when the context has no deadline.
const defaultCLITimeout = 5 * time.Minute

// CLIProvider runs a local model binary and returns its stdout.
type CLIProvider struct {
	name    string
	bin     string
	model   string
	timeout time.Duration
	args    func(model, prompt string) []string
}

// NewOllamaProvider runs "<bin> run <model> <prompt>". Bin defaults to ollama.
func NewOllamaProvider(cfg Config) *CLIProvider {
	bin := cfg.Bin
	if bin == "" {
		bin = "ollama"
	}
	return &CLIProvider{
		name:    ProviderOllama,
		bin:     bin,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		args: func(model, prompt string) []string {
			return []string{"run", model, prompt}
		},
	}
}

// NewLlamaCppProvider runs "<bin> -m <model> -p <prompt>". Bin defaults to ./main.
func NewLlamaCppProvider(cfg Config) *CLIProvider {
	bin := cfg.Bin
	if bin == "" {
		bin = "./main"
	}
	return &CLIProvider{
		name:    ProviderLlamaCpp,
		bin:     bin,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		args: func(model, prompt string) []string {
			return []string{"-m", model, "-p", prompt}
		},
	}
}

// Name implements Provider.
func (p *CLIProvider) Name() string { return p.name }

// Command returns the executable and arguments for a prompt.
func (p *CLIProvider) Command(prompt string) (string, []string) {
	return p.bin, p.args(p.model, prompt)
}

// Chat implements Provider. A non-zero exit reports stderr, or the exit
// code when stderr is empty.
func (p *CLIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := p.timeout
		if timeout <= 0 {
			timeout = defaultCLITimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bin, args := p.Command(req.UserText())
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s timed out", p.name)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, errors.New(msg)
			}
			return nil, fmt.Errorf("command failed: %d", exitErr.ExitCode())
		}
		return nil, fmt.Errorf("failed to execute %s: %w", bin, err)
	}

	return &ChatResponse{
		Content: strings.TrimSpace(stdout.String()),
		Model:   p.model,
	}, nil
}
