package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != "0.0.0.0:3000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Lease.Duration != 300*time.Second {
		t.Errorf("Lease = %v, want 300s", cfg.Lease.Duration)
	}
	if cfg.Store.Key != "state.json" || cfg.Store.Driver != "file" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Report.Schedule != "@every 1m" {
		t.Errorf("Schedule = %q", cfg.Report.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[server]
addr = "127.0.0.1:8080"

[store]
driver = "sqlite"
path = "/var/lib/orch/state.db"

[lease]
duration = "90s"

[ratelimit]
rate = 2.5
burst = 5
`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Lease.Duration != 90*time.Second {
		t.Errorf("Lease = %v", cfg.Lease.Duration)
	}
	if cfg.RateLimit.Rate != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	// Unset sections keep their defaults.
	if cfg.Store.Key != "state.json" {
		t.Errorf("Store.Key = %q, want default", cfg.Store.Key)
	}
	if sc := cfg.StateConfig(); sc.Driver != "sqlite" || sc.Path != "/var/lib/orch/state.db" {
		t.Errorf("StateConfig = %+v", sc)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(t.TempDir())

	if _, err := Load(""); err != nil {
		t.Errorf("missing default file should not fail: %v", err)
	}
	if _, err := Load("nope.toml"); err == nil {
		t.Error("missing explicit file should fail")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.toml")
	os.WriteFile(path, []byte("[bus]\ndriver = \"nats\"\nurl = \"nats://nats:4222\"\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Bus.Driver != "nats" || cfg.Bus.URL != "nats://nats:4222" {
		t.Errorf("Bus = %+v", cfg.Bus)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"ORCH_ADDR":              ":9000",
		"ORCH_API_KEY":           "prod",
		"ORCH_LEASE_SECONDS":     "120",
		"ORCH_HEARTBEAT_TIMEOUT": "2m",
		"ORCH_REPORT_ENABLED":    "false",
		"ORCH_RATE_LIMIT":        "0.5",
		"ORCH_RATE_BURST":        "3",
		"ORCH_STORE_DRIVER":      "redis",
		"ORCH_STORE_URL":         "redis://localhost:6379/0",
		"ORCH_BUS_DRIVER":        "nats",
		"ORCH_BUS_TOKEN":         "bus-secret",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Auth.APIKey != "prod" {
		t.Errorf("server/auth not overridden: %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Lease.Duration != 120*time.Second {
		t.Errorf("Lease = %v", cfg.Lease.Duration)
	}
	if cfg.Heartbeat.Timeout != 2*time.Minute {
		t.Errorf("Heartbeat = %v", cfg.Heartbeat.Timeout)
	}
	if cfg.Report.Enabled {
		t.Error("report should be disabled")
	}
	if cfg.RateLimit.Rate != 0.5 || cfg.RateLimit.Burst != 3 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if sc := cfg.StateConfig(); sc.Driver != "redis" || sc.URL != "redis://localhost:6379/0" {
		t.Errorf("StateConfig = %+v", sc)
	}
	if cfg.Bus.Driver != "nats" || cfg.Bus.Token != "bus-secret" {
		t.Errorf("Bus = %+v", cfg.Bus)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"ORCH_LEASE_SECONDS":  "soon",
		"ORCH_REPORT_ENABLED": "maybe",
	}))
	if err == nil {
		t.Fatal("expected errors for unparsable values")
	}
	if !strings.Contains(err.Error(), "ORCH_LEASE_SECONDS") || !strings.Contains(err.Error(), "ORCH_REPORT_ENABLED") {
		t.Errorf("error should name both keys: %v", err)
	}
	if cfg.Lease.Duration != 300*time.Second {
		t.Error("bad values must not change the setting")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero lease", func(c *Config) { c.Lease.Duration = 0 }},
		{"bad key", func(c *Config) { c.Store.Key = "../state.json" }},
		{"bad bus", func(c *Config) { c.Bus.Driver = "kafka" }},
		{"no burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"bad protocol", func(c *Config) { c.Telemetry.Protocol = "zipkin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestStateConfig_DatabaseDefaults(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "bolt"
	if got := cfg.StateConfig().Path; got != "orchestrator.bolt" {
		t.Errorf("bolt path = %q", got)
	}
	cfg.Store.Driver = "sqlite"
	if got := cfg.StateConfig().Path; got != "orchestrator.db" {
		t.Errorf("sqlite path = %q", got)
	}
}

func TestWorkerConfig(t *testing.T) {
	cfg := DefaultWorker()
	if cfg.Mode != "claim" || cfg.PollInterval != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Capabilities) != 1 || cfg.Capabilities[0] != "general" {
		t.Errorf("Capabilities = %v", cfg.Capabilities)
	}

	err := cfg.ApplyEnv(envMap(map[string]string{
		"ORCH_URL":            "http://orch:3000",
		"WORKER_NAME":         "w-7",
		"POLL_INTERVAL_MS":    "250",
		"LLM_PROVIDER":        "ollama",
		"LLM_MODEL":           "llama3",
		"WORKER_CAPABILITIES": "general, go,review",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}
	if cfg.OrchestratorURL != "http://orch:3000" || cfg.Name != "w-7" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if strings.Join(cfg.Capabilities, ",") != "general,go,review" {
		t.Errorf("Capabilities = %v", cfg.Capabilities)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}

	cfg.Mode = "batch"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad mode: %v", err)
	}
}
