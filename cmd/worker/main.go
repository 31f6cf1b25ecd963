// Command worker claims tasks from an orchestrator and completes them with
// an LLM provider.
//
// Usage:
//
//	worker [-config worker.toml] [-name worker-1] [-mode claim|push]
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/vinayprograms/orchestrator/config"
	"github.com/vinayprograms/orchestrator/credentials"
	"github.com/vinayprograms/orchestrator/llm"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/telemetry"
	"github.com/vinayprograms/orchestrator/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default worker.toml if present)")
		name       = flag.String("name", "", "worker name, overrides WORKER_NAME")
		mode       = flag.String("mode", "", "claim or push")
	)
	flag.Parse()

	logger := logging.New().WithComponent("worker")

	cfg, err := config.LoadWorker(*configPath)
	if err == nil {
		err = cfg.ApplyEnv(os.Getenv)
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("config_invalid", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Worker traces export only when a collector is configured in the
	// standard OTEL environment.
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tp, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName: "orchestrator-worker",
			Role:        "worker",
			Protocol:    os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
			Insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		})
		if err != nil {
			logger.Warn("telemetry_disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		logger.Error("llm_init_failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer llm.Close(provider)

	client := worker.NewClient(cfg.OrchestratorURL, cfg.APIKey, cfg.RequestTimeout)
	w := worker.New(worker.Config{
		Name:              cfg.Name,
		Capabilities:      cfg.Capabilities,
		Mode:              cfg.Mode,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, client, provider, logger)

	logger.Info("starting", map[string]interface{}{
		"orchestrator": cfg.OrchestratorURL,
		"provider":     provider.Name(),
		"mode":         cfg.Mode,
	})
	if err := w.Run(ctx); err != nil {
		logger.Error("worker_failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("stopped", map[string]interface{}{"heartbeats": w.HeartbeatsSent()})
}

func newProvider(ctx context.Context, cfg config.WorkerConfig) (llm.Provider, error) {
	creds, _, err := credentials.Load()
	if err != nil {
		return nil, err
	}

	lc := llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		Bin:       cfg.LLM.Bin,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
		Retry: llm.RetryConfig{
			MaxRetries:  cfg.Retry.MaxRetries,
			InitBackoff: cfg.Retry.Initial,
			MaxBackoff:  cfg.Retry.Max,
			Factor:      cfg.Retry.Factor,
		},
	}
	if lc.Provider == "" {
		lc.Provider = llm.InferProviderFromModel(lc.Model)
	}
	lc.APIKey = creds.GetAPIKey(lc.Provider)
	if lc.BaseURL == "" {
		lc.BaseURL = creds.GetBaseURL(lc.Provider)
	}

	p, err := llm.New(ctx, lc)
	if err != nil {
		return nil, err
	}
	return llm.WithTracing(p, nil), nil
}
