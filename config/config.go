// Package config loads orchestrator and worker settings.
//
// Settings come from three layers, later ones winning: a TOML file,
// environment variables, then command-line flags (applied by the binaries).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/vinayprograms/orchestrator/state"
)

// ErrInvalidConfig indicates a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultPath is the orchestrator config file looked up when none is given.
const DefaultPath = "orchestrator.toml"

// Config is the orchestrator configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Store     StoreConfig     `toml:"store"`
	Bus       BusConfig       `toml:"bus"`
	Lease     LeaseConfig     `toml:"lease"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Report    ReportConfig    `toml:"report"`
	Search    SearchConfig    `toml:"search"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// AuthConfig holds the shared secret. Empty means "take it from
// credentials.toml or ORCH_API_KEY".
type AuthConfig struct {
	APIKey string `toml:"api_key"`
}

// StoreConfig selects the snapshot backend.
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
	Bucket string `toml:"bucket"`
	Key    string `toml:"key"`
}

// BusConfig selects the event bus.
type BusConfig struct {
	Driver     string `toml:"driver"` // "memory" or "nats"
	URL        string `toml:"url"`
	Token      string `toml:"token"`
	BufferSize int    `toml:"buffer_size"`
}

// LeaseConfig sets how long a claim holds a task.
type LeaseConfig struct {
	Duration time.Duration `toml:"duration"`
}

// HeartbeatConfig sets when a silent worker counts as stale.
type HeartbeatConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

// ReportConfig configures the periodic backlog report.
type ReportConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

// SearchConfig toggles the full-text index.
type SearchConfig struct {
	Enabled bool `toml:"enabled"`
}

// RateLimitConfig throttles claims per worker.
type RateLimitConfig struct {
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Protocol    string `toml:"protocol"` // "grpc", "http" or "noop"
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: "file",
			Path:   ".",
			Prefix: "orchestrator:",
			Bucket: "orchestrator",
			Key:    "state.json",
		},
		Bus:       BusConfig{Driver: "memory", BufferSize: 256},
		Lease:     LeaseConfig{Duration: 300 * time.Second},
		Heartbeat: HeartbeatConfig{Timeout: 60 * time.Second},
		Report:    ReportConfig{Enabled: true, Schedule: "@every 1m"},
		Search:    SearchConfig{Enabled: true},
		RateLimit: RateLimitConfig{Rate: 10, Burst: 20},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "orchestrator"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file at DefaultPath is not
// an error; a missing file that was asked for explicitly is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read with getenv.
// Values are coerced with cast; a value that does not parse is an error.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v := getenv(key)
		if v == "" {
			return
		}
		d, err := cast.ToDurationE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	seconds := func(key string, dst *time.Duration) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = time.Duration(n) * time.Second
	}
	boolean := func(key string, dst *bool) {
		v := getenv(key)
		if v == "" {
			return
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v := getenv(key)
		if v == "" {
			return
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}

	str("ORCH_ADDR", &c.Server.Addr)
	str("ORCH_API_KEY", &c.Auth.APIKey)
	str("ORCH_STORE_DRIVER", &c.Store.Driver)
	str("ORCH_STORE_PATH", &c.Store.Path)
	str("ORCH_STORE_URL", &c.Store.URL)
	str("ORCH_SNAPSHOT_KEY", &c.Store.Key)
	str("ORCH_BUS_DRIVER", &c.Bus.Driver)
	str("ORCH_BUS_URL", &c.Bus.URL)
	str("ORCH_BUS_TOKEN", &c.Bus.Token)
	seconds("ORCH_LEASE_SECONDS", &c.Lease.Duration)
	dur("ORCH_HEARTBEAT_TIMEOUT", &c.Heartbeat.Timeout)
	boolean("ORCH_REPORT_ENABLED", &c.Report.Enabled)
	str("ORCH_REPORT_SCHEDULE", &c.Report.Schedule)
	boolean("ORCH_SEARCH_ENABLED", &c.Search.Enabled)
	float("ORCH_RATE_LIMIT", &c.RateLimit.Rate)
	integer("ORCH_RATE_BURST", &c.RateLimit.Burst)
	boolean("ORCH_OTEL_ENABLED", &c.Telemetry.Enabled)
	str("ORCH_OTEL_PROTOCOL", &c.Telemetry.Protocol)
	str("ORCH_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	str("ORCH_LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Lease.Duration <= 0 {
		errs = append(errs, errors.New("lease.duration must be positive"))
	}
	if c.Store.Key != "" {
		if err := state.ValidateKey(c.Store.Key); err != nil {
			errs = append(errs, fmt.Errorf("store.key: %w", err))
		}
	}
	switch strings.ToLower(c.Bus.Driver) {
	case "", "memory", "nats":
	default:
		errs = append(errs, fmt.Errorf("bus.driver %q is not memory or nats", c.Bus.Driver))
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.burst must be positive when rate is set"))
	}
	switch strings.ToLower(c.Telemetry.Protocol) {
	case "", "grpc", "http", "noop":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol %q is not grpc, http or noop", c.Telemetry.Protocol))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// StateConfig converts the store section for state.Open.
func (c *Config) StateConfig() state.Config {
	sc := state.DefaultConfig()
	if c.Store.Driver != "" {
		sc.Driver = c.Store.Driver
	}
	if c.Store.Path != "" {
		sc.Path = c.Store.Path
	}
	sc.URL = c.Store.URL
	if c.Store.Prefix != "" {
		sc.Prefix = c.Store.Prefix
	}
	if c.Store.Bucket != "" {
		sc.Bucket = c.Store.Bucket
	}
	// The default path is a directory; database drivers need a file.
	if sc.Path == "." {
		switch strings.ToLower(sc.Driver) {
		case "sqlite":
			sc.Path = "orchestrator.db"
		case "bolt", "bbolt":
			sc.Path = "orchestrator.bolt"
		}
	}
	return sc
}
