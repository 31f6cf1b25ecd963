// Package report logs a periodic summary of the task backlog and worker
// liveness on a cron schedule.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vinayprograms/orchestrator/heartbeat"
	"github.com/vinayprograms/orchestrator/logging"
)

// DefaultSchedule runs the report once a minute.
const DefaultSchedule = "@every 1m"

// Backlog is the raw input for one report.
type Backlog struct {
	// Counts is the number of tasks per status.
	Counts map[string]int

	// Eligible is the number of tasks a claim could pick up now.
	Eligible int

	// Workers lists every registered worker's last heartbeat.
	Workers []heartbeat.Seen
}

// Source produces the current backlog.
type Source func() Backlog

// Summary is one completed report.
type Summary struct {
	At       time.Time         `json:"at"`
	Counts   map[string]int    `json:"counts"`
	Total    int               `json:"total"`
	Eligible int               `json:"eligible"`
	Workers  heartbeat.Summary `json:"workers"`
}

// Config configures a Reporter.
type Config struct {
	Schedule string

	// Monitor classifies workers. Defaults to heartbeat.NewMonitor(0).
	Monitor *heartbeat.Monitor

	Logger *logging.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Reporter runs the backlog report on a schedule.
type Reporter struct {
	source  Source
	monitor *heartbeat.Monitor
	logger  *logging.Logger
	now     func() time.Time
	cron    *cron.Cron

	mu   sync.Mutex
	last *Summary
	runs int
}

// New creates a reporter. The schedule is parsed immediately so a bad
// expression fails at startup.
func New(cfg Config, source Source) (*Reporter, error) {
	if source == nil {
		return nil, fmt.Errorf("report: source is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Monitor == nil {
		cfg.Monitor = heartbeat.NewMonitor(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Reporter{
		source:  source,
		monitor: cfg.Monitor,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}

	cl := cronLogger{r.logger}
	r.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := r.cron.AddFunc(cfg.Schedule, func() { r.Run() }); err != nil {
		return nil, fmt.Errorf("report: bad schedule %q: %w", cfg.Schedule, err)
	}

	r.monitor.OnStale(func(workerID string) {
		r.logger.Warn("worker_stale", map[string]interface{}{"worker": workerID})
	})
	return r, nil
}

// Start begins running on the schedule.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report, up to ctx.
func (r *Reporter) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run produces and logs one report immediately.
func (r *Reporter) Run() Summary {
	b := r.source()
	now := r.now()

	s := Summary{
		At:       now,
		Counts:   make(map[string]int, len(b.Counts)),
		Eligible: b.Eligible,
		Workers:  r.monitor.Check(b.Workers, now),
	}
	for status, n := range b.Counts {
		s.Counts[status] = n
		s.Total += n
	}

	fields := map[string]interface{}{
		"total":         s.Total,
		"eligible":      s.Eligible,
		"workers_alive": s.Workers.Alive,
		"workers_stale": s.Workers.Stale,
	}
	statuses := make([]string, 0, len(s.Counts))
	for status := range s.Counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fields["status_"+status] = s.Counts[status]
	}
	r.logger.Info("backlog_report", fields)

	r.mu.Lock()
	r.last = &s
	r.runs++
	r.mu.Unlock()
	return s
}

// Last returns the most recent report, or nil before the first run.
func (r *Reporter) Last() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// Runs returns how many reports have been produced.
func (r *Reporter) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron_"+msg, kv(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kv(keysAndValues)
	fields["error"] = err.Error()
	c.l.Error("cron_"+msg, fields)
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
