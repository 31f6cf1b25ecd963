package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/orchestrator/logging"
)

// Common errors.
var (
	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Phases used by the orchestrator binaries.
const (
	PhaseHTTP       = 10
	PhaseBackground = 20
	PhaseFlush      = 30
	PhaseClose      = 40
	PhaseTelemetry  = 50
)

// Handler is implemented by components that need graceful shutdown.
type Handler interface {
	// OnShutdown is called when shutdown is initiated. The context is
	// cancelled when the timeout is reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is nil if every handler succeeded.
	Err error
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// Timeout bounds the whole shutdown.
	// Default: 30 seconds
	Timeout time.Duration

	// ContinueOnError keeps running later phases after a handler fails.
	// Default: true
	ContinueOnError bool

	// Logger receives progress. Optional.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers phase by phase, once.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	done    chan struct{}
	result  *Result
	signals chan os.Signal
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// RegisterWithPhase adds a handler to a phase.
func (c *Coordinator) RegisterWithPhase(name string, handler Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFuncWithPhase registers a function as a handler.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn func(ctx context.Context) error, phase int) {
	c.RegisterWithPhase(name, HandlerFunc(fn), phase)
}

// Shutdown runs every handler. Later calls wait for the first one and
// return its error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.result = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.result.Err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-c.signals:
			c.logger.Info("shutdown_signal", map[string]interface{}{"signal": sig.String()})
			c.ShutdownWithTimeout()
		case <-c.done:
		}
		signal.Stop(c.signals)
	}()
}

// Trigger starts shutdown as if a signal had arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown result, or nil while shutdown has not finished.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	finish := func(err error) *Result {
		result.Err = err
		result.TotalDuration = time.Since(start)
		c.logger.Info("shutdown_complete", map[string]interface{}{
			"duration_ms": result.TotalDuration.Milliseconds(),
			"failed":      len(result.FailedHandlers()),
		})
		return result
	}

	var overall error
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			return finish(ErrTimeout)
		}

		phaseResults := c.runPhase(ctx, group)
		result.Results = append(result.Results, phaseResults...)

		for _, hr := range phaseResults {
			if hr.Err == nil {
				continue
			}
			overall = ErrHandlerFailed
			if !c.config.ContinueOnError {
				return finish(overall)
			}
		}
	}
	return finish(overall)
}

// runPhase runs all handlers in a phase concurrently.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			begin := time.Now()
			err := r.handler.OnShutdown(ctx)
			hr := HandlerResult{Name: r.name, Phase: r.phase, Duration: time.Since(begin), Err: err}
			results[idx] = hr

			fields := map[string]interface{}{
				"handler":     hr.Name,
				"phase":       hr.Phase,
				"duration_ms": hr.Duration.Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.logger.Warn("shutdown_handler_failed", fields)
			} else {
				c.logger.Debug("shutdown_handler_done", fields)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

// groupByPhase splits handlers, already sorted by phase, into phase groups.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
