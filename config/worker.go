package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
)

// DefaultWorkerPath is the worker config file looked up when none is given.
const DefaultWorkerPath = "worker.toml"

// WorkerConfig is the worker binary configuration.
type WorkerConfig struct {
	OrchestratorURL string   `toml:"orchestrator_url"`
	APIKey          string   `toml:"api_key"`
	Name            string   `toml:"name"`
	Capabilities    []string `toml:"capabilities"`

	// Mode is "claim" (lease protocol) or "push" (list, assign, deliver).
	Mode string `toml:"mode"`

	PollInterval      time.Duration `toml:"poll_interval"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	RequestTimeout    time.Duration `toml:"request_timeout"`

	LLM   WorkerLLMConfig `toml:"llm"`
	Retry RetryConfig     `toml:"retry"`
	Log   LogConfig       `toml:"log"`
}

// WorkerLLMConfig selects the completion backend.
type WorkerLLMConfig struct {
	Provider  string        `toml:"provider"`
	Model     string        `toml:"model"`
	Bin       string        `toml:"bin"`
	BaseURL   string        `toml:"base_url"`
	MaxTokens int           `toml:"max_tokens"`
	Timeout   time.Duration `toml:"timeout"`
}

// RetryConfig controls backoff for transient LLM errors.
type RetryConfig struct {
	MaxRetries int           `toml:"max_retries"`
	Initial    time.Duration `toml:"initial"`
	Max        time.Duration `toml:"max"`
	Factor     float64       `toml:"factor"`
}

// DefaultWorker returns the built-in worker configuration.
func DefaultWorker() WorkerConfig {
	return WorkerConfig{
		OrchestratorURL:   "http://localhost:3000",
		APIKey:            "dev_key",
		Name:              "worker-1",
		Capabilities:      []string{"general"},
		Mode:              "claim",
		PollInterval:      5 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		RequestTimeout:    10 * time.Second,
		LLM: WorkerLLMConfig{
			Provider:  "echo",
			MaxTokens: 1024,
			Timeout:   2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			Initial:    time.Second,
			Max:        60 * time.Second,
			Factor:     2,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadWorker reads path over the worker defaults, with the same missing
// file rules as Load.
func LoadWorker(path string) (WorkerConfig, error) {
	cfg := DefaultWorker()
	if path == "" {
		path = DefaultWorkerPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load worker config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides worker settings from the environment.
func (c *WorkerConfig) ApplyEnv(getenv func(string) string) error {
	var errs []error
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set("ORCH_URL", &c.OrchestratorURL)
	set("ORCH_API_KEY", &c.APIKey)
	set("WORKER_NAME", &c.Name)
	set("WORKER_MODE", &c.Mode)
	set("LLM_PROVIDER", &c.LLM.Provider)
	set("LLM_MODEL", &c.LLM.Model)
	set("LLM_BIN", &c.LLM.Bin)
	set("OPENCLAW_URL", &c.LLM.BaseURL)

	if v := getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := cast.ToInt64E(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("POLL_INTERVAL_MS: %w", err))
		} else {
			c.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := getenv("WORKER_CAPABILITIES"); v != "" {
		c.Capabilities = cast.ToStringSlice(strings.ReplaceAll(v, ",", " "))
	}
	if v := getenv("LLM_MAX_RETRIES"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES: %w", err))
		} else {
			c.Retry.MaxRetries = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks the worker configuration.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if c.OrchestratorURL == "" {
		errs = append(errs, errors.New("orchestrator_url is required"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Mode != "claim" && c.Mode != "push" {
		errs = append(errs, fmt.Errorf("mode %q is not claim or push", c.Mode))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
