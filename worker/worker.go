package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/heartbeat"
	"github.com/vinayprograms/orchestrator/llm"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/tasks"
)

// Modes.
const (
	// ModeClaim pulls work with leases and heartbeats.
	ModeClaim = "claim"

	// ModePush lists tasks, assigns the first open one to itself as a bot,
	// and delivers it without an ownership check.
	ModePush = "push"
)

// Orchestrator is the part of the orchestrator API a worker uses.
type Orchestrator interface {
	heartbeat.Beater
	RegisterWorker(ctx context.Context, name string, capabilities []string) (string, error)
	RegisterBot(ctx context.Context, name string, capabilities []string) (string, error)
	Claim(ctx context.Context, workerID string) (*tasks.Task, bool, error)
	Complete(ctx context.Context, taskID, workerID, summary string) error
	Fail(ctx context.Context, taskID, workerID, reason string) error
	ListTasks(ctx context.Context) ([]*tasks.Task, error)
	Assign(ctx context.Context, taskID, botID string) error
	Deliver(ctx context.Context, taskID, summary string) error
}

// Config configures a Worker.
type Config struct {
	Name              string
	Capabilities      []string
	Mode              string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// Worker runs tasks from the orchestrator through an LLM provider.
type Worker struct {
	cfg      Config
	orch     Orchestrator
	provider llm.Provider
	logger   *logging.Logger

	id        string
	heartbeat *heartbeat.Sender
}

// New creates a worker.
func New(cfg Config, orch Orchestrator, provider llm.Provider, logger *logging.Logger) *Worker {
	if cfg.Mode == "" {
		cfg.Mode = ModeClaim
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"general"}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Worker{cfg: cfg, orch: orch, provider: provider, logger: logger}
}

// ID returns the identity assigned at registration.
func (w *Worker) ID() string {
	return w.id
}

// HeartbeatsSent returns the number of heartbeats delivered so far.
func (w *Worker) HeartbeatsSent() int64 {
	if w.heartbeat == nil {
		return 0
	}
	return w.heartbeat.Sent()
}

// BuildPrompt renders the prompt sent to the model for a task.
func BuildPrompt(t *tasks.Task) string {
	return fmt.Sprintf("Task: %s\n\nDescription: %s\n\nProvide a short completion summary.", t.Title, t.Description)
}

// Register announces the worker. Claim mode registers a worker and starts
// heartbeats; push mode registers a bot.
func (w *Worker) Register(ctx context.Context) error {
	var err error
	if w.cfg.Mode == ModePush {
		w.id, err = w.orch.RegisterBot(ctx, w.cfg.Name, w.cfg.Capabilities)
	} else {
		w.id, err = w.orch.RegisterWorker(ctx, w.cfg.Name, w.cfg.Capabilities)
	}
	if err != nil {
		return errors.Wrap(err, "register")
	}
	w.logger.Info("registered", map[string]interface{}{"id": w.id, "mode": w.cfg.Mode, "name": w.cfg.Name})
	return nil
}

// Run registers and processes tasks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Register(ctx); err != nil {
		return err
	}

	if w.cfg.Mode == ModeClaim {
		sender, err := heartbeat.NewSender(heartbeat.SenderConfig{
			Beater:   w.orch,
			WorkerID: w.id,
			Interval: w.cfg.HeartbeatInterval,
			OnError: func(err error) {
				w.logger.Warn("heartbeat_failed", map[string]interface{}{"error": err.Error()})
			},
		})
		if err != nil {
			return err
		}
		if err := sender.Start(ctx); err != nil {
			return err
		}
		w.heartbeat = sender
		defer sender.Stop()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.Step(ctx)
		if err != nil && ctx.Err() == nil {
			fields := map[string]interface{}{"error": err.Error(), "code": string(errors.Code(err))}
			if errors.IsRetryable(err) {
				w.logger.Warn("orchestrator_busy", fields)
			} else {
				w.logger.Error("worker_error", fields)
			}
		}
		// Go straight back for more while the queue has work.
		if worked && err == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step processes at most one task. It reports whether a task was taken.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	if w.id == "" {
		return false, errors.New(errors.ErrCodeInvalidInput, "worker is not registered")
	}
	if w.cfg.Mode == ModePush {
		return w.stepPush(ctx)
	}
	return w.stepClaim(ctx)
}

func (w *Worker) stepClaim(ctx context.Context) (bool, error) {
	task, ok, err := w.orch.Claim(ctx, w.id)
	if err != nil {
		return false, errors.Wrap(err, "claim")
	}
	if !ok {
		return false, nil
	}
	w.logger.TaskEvent("claimed", task.ID, w.id, map[string]interface{}{"attempts": task.Attempts})

	resp, err := w.provider.Chat(ctx, llm.Prompt(BuildPrompt(task)))
	if err != nil {
		w.logger.TaskEvent("failing", task.ID, w.id, map[string]interface{}{"error": err.Error()})
		if ferr := w.orch.Fail(ctx, task.ID, w.id, err.Error()); ferr != nil {
			return true, errors.Wrap(ferr, "fail", errors.WithTaskID(task.ID))
		}
		return true, nil
	}

	summary := w.summary(task, resp.Content)
	if err := w.orch.Complete(ctx, task.ID, w.id, summary); err != nil {
		return true, errors.Wrap(err, "complete", errors.WithTaskID(task.ID))
	}
	w.logger.TaskEvent("completed", task.ID, w.id, nil)
	return true, nil
}

func (w *Worker) stepPush(ctx context.Context) (bool, error) {
	list, err := w.orch.ListTasks(ctx)
	if err != nil {
		return false, errors.Wrap(err, "list tasks")
	}

	var open *tasks.Task
	for _, t := range list {
		if t.Status == tasks.StatusOpen {
			open = t
			break
		}
	}
	if open == nil {
		return false, nil
	}

	if err := w.orch.Assign(ctx, open.ID, w.id); err != nil {
		// Another bot got there first.
		if errors.Is(err, errors.ErrCodeIllegalTransition) {
			return false, nil
		}
		return false, errors.Wrap(err, "assign", errors.WithTaskID(open.ID))
	}
	w.logger.TaskEvent("assigned", open.ID, w.id, nil)

	// Push mode always delivers; an LLM error ends up in the summary.
	var summary string
	resp, err := w.provider.Chat(ctx, llm.Prompt(BuildPrompt(open)))
	if err != nil {
		summary = fmt.Sprintf("%s. (llm error: %s)", w.baseSummary(open), err.Error())
	} else {
		summary = w.summary(open, resp.Content)
	}

	if err := w.orch.Deliver(ctx, open.ID, summary); err != nil {
		return true, errors.Wrap(err, "deliver", errors.WithTaskID(open.ID))
	}
	w.logger.TaskEvent("delivered", open.ID, w.id, nil)
	return true, nil
}

func (w *Worker) baseSummary(t *tasks.Task) string {
	return fmt.Sprintf("Worker %s completed task %s", w.cfg.Name, t.ID)
}

// summary picks the delivery summary for a model reply.
func (w *Worker) summary(t *tasks.Task, content string) string {
	if w.provider.Name() == llm.ProviderEcho {
		return w.baseSummary(t) + ". (echo mode)"
	}
	if content == "" {
		return w.baseSummary(t) + "."
	}
	return content
}
