// Command orchestrator serves the task board over HTTP.
//
// Usage:
//
//	orchestrator [-config orchestrator.toml] [-addr host:port] [-log-level info]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/vinayprograms/orchestrator/api"
	"github.com/vinayprograms/orchestrator/auth"
	"github.com/vinayprograms/orchestrator/bus"
	"github.com/vinayprograms/orchestrator/config"
	"github.com/vinayprograms/orchestrator/credentials"
	"github.com/vinayprograms/orchestrator/heartbeat"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/ratelimit"
	"github.com/vinayprograms/orchestrator/report"
	"github.com/vinayprograms/orchestrator/search"
	"github.com/vinayprograms/orchestrator/service"
	"github.com/vinayprograms/orchestrator/shutdown"
	"github.com/vinayprograms/orchestrator/snapshot"
	"github.com/vinayprograms/orchestrator/state"
	"github.com/vinayprograms/orchestrator/telemetry"
	"github.com/vinayprograms/orchestrator/transport"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default orchestrator.toml if present)")
		addr       = flag.String("addr", "", "listen address, overrides server.addr")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := logging.New().WithComponent("orchestrator")

	cfg, err := loadConfig(*configPath, *addr, *logLevel)
	if err != nil {
		logger.Error("config_invalid", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("orchestrator_failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func loadConfig(path, addr, level string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if level != "" {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx := context.Background()
	coord := shutdown.NewCoordinator(shutdown.Config{
		Timeout:         cfg.Server.ShutdownTimeout,
		ContinueOnError: true,
		Logger:          logger.WithComponent("shutdown"),
	})

	creds, credPath, err := credentials.Load()
	if err != nil {
		return err
	}
	if credPath != "" {
		logger.Info("credentials_loaded", map[string]interface{}{"path": credPath})
	}
	apiKey := cfg.Auth.APIKey
	if apiKey == "" {
		apiKey = creds.OrchestratorKey()
	}
	if apiKey == credentials.DefaultOrchestratorKey {
		logger.Warn("default_api_key", map[string]interface{}{"hint": "set ORCH_API_KEY or [orchestrator] api_key"})
	}
	authenticator, err := auth.NewAuthenticator(apiKey)
	if err != nil {
		return err
	}

	// Telemetry
	tracer := telemetry.GetTracer()
	metrics := telemetry.NopMetrics()
	if cfg.Telemetry.Enabled && cfg.Telemetry.Protocol != "noop" {
		tp, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Role:        "orchestrator",
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Debug:       cfg.Telemetry.Debug,
		})
		if err != nil {
			return err
		}
		tracer, metrics = tp.Tracer(), tp.Metrics()
		coord.RegisterFuncWithPhase("telemetry", tp.Shutdown, shutdown.PhaseTelemetry)
	}

	// Snapshot store
	store, err := state.Open(cfg.StateConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	coord.RegisterFuncWithPhase("store", func(context.Context) error { return store.Close() }, shutdown.PhaseClose)
	persister := snapshot.NewPersister(store,
		snapshot.WithKey(cfg.Store.Key),
		snapshot.WithLogger(logger.WithComponent("snapshot")),
	)

	// Event bus
	eventBus, err := openBus(cfg.Bus, logger.WithComponent("bus"))
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	coord.RegisterFuncWithPhase("bus", func(context.Context) error {
		if mb, ok := eventBus.(*bus.MemoryBus); ok && mb.Dropped() > 0 {
			logger.Warn("events_dropped", map[string]interface{}{"count": mb.Dropped()})
		}
		return eventBus.Close()
	}, shutdown.PhaseClose)

	var index *search.Index
	if cfg.Search.Enabled {
		index, err = search.NewIndex()
		if err != nil {
			return fmt.Errorf("search index: %w", err)
		}
		coord.RegisterFuncWithPhase("search", func(context.Context) error { return index.Close() }, shutdown.PhaseClose)
	}

	svc := service.New(service.Options{
		Persister:     persister,
		Bus:           eventBus,
		Index:         index,
		Metrics:       metrics,
		Tracer:        tracer,
		Logger:        logger.WithComponent("service"),
		LeaseDuration: cfg.Lease.Duration,
	})
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	coord.RegisterFuncWithPhase("flush", svc.Flush, shutdown.PhaseFlush)

	var limiter *ratelimit.KeyedLimiter
	if cfg.RateLimit.Rate > 0 {
		rl := ratelimit.DefaultConfig()
		rl.Rate = cfg.RateLimit.Rate
		rl.Burst = cfg.RateLimit.Burst
		limiter = ratelimit.New(rl)
		coord.RegisterFuncWithPhase("ratelimit", func(context.Context) error { return limiter.Close() }, shutdown.PhaseBackground)
	}

	if cfg.Report.Enabled {
		reporter, err := report.New(report.Config{
			Schedule: cfg.Report.Schedule,
			Monitor:  heartbeat.NewMonitor(cfg.Heartbeat.Timeout),
			Logger:   logger.WithComponent("report"),
		}, backlogSource(svc, limiter))
		if err != nil {
			return err
		}
		reporter.Start()
		coord.RegisterFuncWithPhase("report", reporter.Stop, shutdown.PhaseBackground)
	}

	events := transport.NewEventStream(eventBus, transport.DefaultEventStreamConfig(), logger.WithComponent("events"))
	server := api.New(api.Options{
		Service: svc,
		Auth:    authenticator,
		Limiter: limiter,
		Events:  events,
		Logger:  logger.WithComponent("api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	coord.RegisterFuncWithPhase("http", httpServer.Shutdown, shutdown.PhaseHTTP)
	coord.HandleSignals()

	logger.Info("listening", map[string]interface{}{
		"addr":  cfg.Server.Addr,
		"store": cfg.StateConfig().Driver,
		"bus":   cfg.Bus.Driver,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			coord.ShutdownWithTimeout()
			return fmt.Errorf("listen: %w", err)
		}
		<-coord.Done()
	case <-coord.Done():
	}

	if res := coord.Result(); res != nil && res.Err != nil {
		return fmt.Errorf("shutdown: %w (failed: %s)", res.Err, strings.Join(res.FailedHandlers(), ", "))
	}
	logger.Info("stopped")
	return nil
}

func openBus(cfg config.BusConfig, logger *logging.Logger) (bus.MessageBus, error) {
	switch strings.ToLower(cfg.Driver) {
	case "nats":
		nc := bus.DefaultNATSConfig()
		if cfg.URL != "" {
			nc.URL = cfg.URL
		}
		if cfg.BufferSize > 0 {
			nc.BufferSize = cfg.BufferSize
		}
		nc.Token = cfg.Token
		nc.Logger = logger
		return bus.NewNATSBus(nc)
	default:
		bc := bus.DefaultConfig()
		if cfg.BufferSize > 0 {
			bc.BufferSize = cfg.BufferSize
		}
		return bus.NewMemoryBus(bc), nil
	}
}

// backlogSource adapts service stats for the reporter. Idle claim buckets
// are dropped on the same tick.
func backlogSource(svc *service.Service, limiter *ratelimit.KeyedLimiter) report.Source {
	return func() report.Backlog {
		ctx := context.Background()
		if limiter != nil {
			limiter.Prune()
		}
		st := svc.Stats(ctx)
		workers := svc.Workers(ctx)
		seen := make([]heartbeat.Seen, 0, len(workers))
		for _, w := range workers {
			seen = append(seen, heartbeat.Seen{WorkerID: w.ID, LastSeen: w.LastHeartbeat})
		}
		return report.Backlog{Counts: st.Counts, Eligible: st.Eligible, Workers: seen}
	}
}
