package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/vinayprograms/orchestrator/bus"
	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/logging"
	"github.com/vinayprograms/orchestrator/registry"
	"github.com/vinayprograms/orchestrator/search"
	"github.com/vinayprograms/orchestrator/snapshot"
	"github.com/vinayprograms/orchestrator/tasks"
	"github.com/vinayprograms/orchestrator/telemetry"
)

// Options configures a Service. Every field is optional.
type Options struct {
	// Persister writes a snapshot after each mutation. Nil disables
	// persistence.
	Persister *snapshot.Persister

	// Bus receives task events. Nil disables events.
	Bus bus.MessageBus

	// Index is updated on every task mutation. Nil disables search.
	Index *search.Index

	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Logger  *logging.Logger

	// Clock is the time source for leases and timestamps.
	Clock func() time.Time

	// IDGenerator replaces the default UUID generator.
	IDGenerator func() string

	// LeaseDuration overrides tasks.DefaultLeaseDuration.
	LeaseDuration time.Duration
}

// Service is the orchestrator's in-process store.
type Service struct {
	mu    sync.Mutex
	board *tasks.Board
	reg   *registry.Registry

	persister *snapshot.Persister
	bus       bus.MessageBus
	index     *search.Index
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a service with an empty store. Call Load to restore a
// snapshot.
func New(opts Options) *Service {
	s := &Service{
		persister: opts.Persister,
		bus:       opts.Bus,
		index:     opts.Index,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
		now:       opts.Clock,
	}
	if s.metrics == nil {
		s.metrics = telemetry.NopMetrics()
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}

	boardOpts := []tasks.BoardOption{tasks.WithClock(s.now), tasks.WithLeaseDuration(opts.LeaseDuration)}
	regOpts := []registry.Option{registry.WithClock(s.now)}
	if opts.IDGenerator != nil {
		boardOpts = append(boardOpts, tasks.WithIDGenerator(opts.IDGenerator))
		regOpts = append(regOpts, registry.WithIDGenerator(opts.IDGenerator))
	}
	s.board = tasks.NewBoard(boardOpts...)
	s.reg = registry.New(regOpts...)
	return s
}

// Load replaces the store with the persisted snapshot. A missing or corrupt
// snapshot leaves the store empty. The returned error reports a storage
// failure; the store is still usable (and empty) when it is non-nil.
func (s *Service) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	doc, err := s.persister.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.board.Restore(doc.Tasks)
	s.reg.Restore(doc.Records())
	if s.index != nil {
		if ierr := s.index.Rebuild(s.board.List()); ierr != nil {
			s.logger.Warn("search_rebuild_failed", map[string]interface{}{"error": ierr.Error()})
		}
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodePersistence, "load snapshot")
	}
	return nil
}

// Flush writes a snapshot now and returns any storage error.
func (s *Service) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persister.Save(s.documentLocked()); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodePersistence, "flush snapshot")
	}
	return nil
}

// --- Task operations ---

// Intake creates an open task. It always succeeds.
func (s *Service) Intake(ctx context.Context, projectID, title, description string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "intake")
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.board.Intake(projectID, title, description)
	s.commitLocked(ctx, EventIntake, t, "")
	s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: t.ID, Status: string(t.Status)}, nil)
	return t, nil
}

// Assign pushes a task to a bot under a lease.
func (s *Service) Assign(ctx context.Context, taskID, botID string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "assign")
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.board.Assign(taskID, botID)
	if err != nil {
		err = mapError(err, "assign", taskID, botID)
		s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: taskID, WorkerID: botID}, err)
		return nil, err
	}
	s.commitLocked(ctx, EventAssigned, t, botID)
	s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: t.ID, WorkerID: botID, Status: string(t.Status)}, nil)
	return t, nil
}

// Claim hands the first eligible task to workerID. The bool is false when
// nothing is eligible, which is not an error.
func (s *Service) Claim(ctx context.Context, workerID string) (*tasks.Task, bool, error) {
	ctx, span := s.tracer.StartOperation(ctx, "claim")
	if workerID == "" {
		err := errors.InvalidInput("worker_id is required")
		s.tracer.EndOperation(span, telemetry.OperationOptions{}, err)
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.board.Claim(workerID)
	if !ok {
		s.metrics.ClaimMiss(ctx)
		s.logger.ClaimMiss(workerID)
		s.tracer.EndOperation(span, telemetry.OperationOptions{WorkerID: workerID}, nil)
		return nil, false, nil
	}
	s.metrics.Claimed(ctx, workerID)
	s.commitLocked(ctx, EventClaimed, t, workerID)
	s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: t.ID, WorkerID: workerID, Status: string(t.Status)}, nil)
	return t, true, nil
}

// Complete records a delivery by the task's assignee.
func (s *Service) Complete(ctx context.Context, taskID, workerID, summary string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "complete")
	s.mu.Lock()
	defer s.mu.Unlock()

	before, _ := s.board.Get(taskID)
	t, err := s.board.Complete(taskID, workerID, summary)
	opts := telemetry.OperationOptions{TaskID: taskID, WorkerID: workerID, Text: summary}
	if err != nil {
		err = mapError(err, "complete", taskID, workerID)
		s.tracer.EndOperation(span, opts, err)
		return nil, err
	}
	if before == nil || before.Status != tasks.StatusDelivered {
		s.metrics.Completed(ctx)
		s.commitLocked(ctx, EventCompleted, t, workerID)
	}
	opts.Status = string(t.Status)
	s.tracer.EndOperation(span, opts, nil)
	return t, nil
}

// Fail records a failure reported by the task's assignee.
func (s *Service) Fail(ctx context.Context, taskID, workerID, reason string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "fail")
	s.mu.Lock()
	defer s.mu.Unlock()

	before, _ := s.board.Get(taskID)
	t, err := s.board.Fail(taskID, workerID, reason)
	opts := telemetry.OperationOptions{TaskID: taskID, WorkerID: workerID, Text: reason}
	if err != nil {
		err = mapError(err, "fail", taskID, workerID)
		s.tracer.EndOperation(span, opts, err)
		return nil, err
	}
	if before == nil || before.Status != tasks.StatusFailed {
		s.metrics.Failed(ctx)
		s.commitLocked(ctx, EventFailed, t, workerID)
	}
	opts.Status = string(t.Status)
	s.tracer.EndOperation(span, opts, nil)
	return t, nil
}

// UpdateStatus applies a general status transition.
func (s *Service) UpdateStatus(ctx context.Context, taskID, status string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "status")
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.board.UpdateStatus(taskID, status)
	if err != nil {
		err = mapError(err, "update status", taskID, "")
		s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: taskID, Status: status}, err)
		return nil, err
	}
	s.commitLocked(ctx, EventStatus, t, "")
	s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: t.ID, Status: string(t.Status)}, nil)
	return t, nil
}

// Deliver marks a task delivered without an ownership check.
func (s *Service) Deliver(ctx context.Context, taskID, summary string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "deliver")
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.board.Deliver(taskID, summary)
	opts := telemetry.OperationOptions{TaskID: taskID, Text: summary}
	if err != nil {
		err = mapError(err, "deliver", taskID, "")
		s.tracer.EndOperation(span, opts, err)
		return nil, err
	}
	s.commitLocked(ctx, EventDelivered, t, t.Assignee)
	opts.Status = string(t.Status)
	s.tracer.EndOperation(span, opts, nil)
	return t, nil
}

// Reopen returns a failed task to the queue.
func (s *Service) Reopen(ctx context.Context, taskID string) (*tasks.Task, error) {
	ctx, span := s.tracer.StartOperation(ctx, "reopen")
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.board.Reopen(taskID)
	if err != nil {
		err = mapError(err, "reopen", taskID, "")
		s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: taskID}, err)
		return nil, err
	}
	s.commitLocked(ctx, EventReopened, t, "")
	s.tracer.EndOperation(span, telemetry.OperationOptions{TaskID: t.ID, Status: string(t.Status)}, nil)
	return t, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.board.Get(taskID)
	if err != nil {
		return nil, mapError(err, "get task", taskID, "")
	}
	return t, nil
}

// ListTasks returns every task sorted by title.
func (s *Service) ListTasks(ctx context.Context) []*tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.ListByTitle()
}

// Backlog returns the tasks a claim could pick up now, in claim order.
func (s *Service) Backlog(ctx context.Context) []*tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Backlog()
}

// --- Identity operations ---

// RegisterBot adds a push-mode agent.
func (s *Service) RegisterBot(ctx context.Context, name string, capabilities []string) registry.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.reg.RegisterBot(name, capabilities)
	s.logger.Info("bot_registered", map[string]interface{}{"bot": b.ID, "name": name})
	s.saveLocked(ctx)
	return b
}

// RegisterWorker adds a claim-mode agent.
func (s *Service) RegisterWorker(ctx context.Context, name string, capabilities []string) registry.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.reg.RegisterWorker(name, capabilities)
	s.logger.Info("worker_registered", map[string]interface{}{"worker": w.ID, "name": name})
	s.saveLocked(ctx)
	return w
}

// Heartbeat records that a worker is alive. Leases are not touched.
func (s *Service) Heartbeat(ctx context.Context, workerID string) (registry.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.reg.Heartbeat(workerID)
	if err != nil {
		return registry.Worker{}, mapError(err, "heartbeat", "", workerID)
	}
	s.saveLocked(ctx)
	return w, nil
}

// CreateClient adds a client.
func (s *Service) CreateClient(ctx context.Context, name, contact string) registry.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.reg.CreateClient(name, contact)
	s.saveLocked(ctx)
	return c
}

// CreateProject adds a project. The client ID is not checked.
func (s *Service) CreateProject(ctx context.Context, clientID, name, description string) registry.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.reg.CreateProject(clientID, name, description)
	s.saveLocked(ctx)
	return p
}

// Bots lists bots sorted by ID.
func (s *Service) Bots(ctx context.Context) []registry.Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Bots()
}

// Workers lists workers sorted by ID.
func (s *Service) Workers(ctx context.Context) []registry.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Workers()
}

// Clients lists clients sorted by ID.
func (s *Service) Clients(ctx context.Context) []registry.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Clients()
}

// Projects lists projects sorted by ID.
func (s *Service) Projects(ctx context.Context) []registry.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Projects()
}

// --- Search and stats ---

// SearchResult is one task matched by Search.
type SearchResult struct {
	Score float64     `json:"score"`
	Task  *tasks.Task `json:"task"`
}

// Search runs a full-text query over task titles and descriptions.
func (s *Service) Search(ctx context.Context, query string, limit int, filter search.Filter) ([]SearchResult, error) {
	if s.index == nil {
		return nil, errors.Unavailable("search is disabled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hits, err := s.index.Search(query, limit, filter)
	if err != nil {
		if stderrors.Is(err, search.ErrEmptyQuery) {
			return nil, errors.InvalidInput("q is required")
		}
		return nil, errors.Wrap(err, "search")
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		t, err := s.board.Get(h.ID)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{Score: h.Score, Task: t})
	}
	return results, nil
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Tasks    int              `json:"tasks"`
	Counts   map[string]int   `json:"counts"`
	Eligible int              `json:"eligible"`
	Bots     int              `json:"bots"`
	Workers  int              `json:"workers"`
	Clients  int              `json:"clients"`
	Projects int              `json:"projects"`
	Metrics  telemetry.Counts `json:"metrics"`
}

// Stats returns counts of everything in the store.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for status, n := range s.board.Counts() {
		counts[string(status)] = n
	}
	rec := s.reg.Snapshot()
	return Stats{
		Tasks:    s.board.Len(),
		Counts:   counts,
		Eligible: len(s.board.Backlog()),
		Bots:     len(rec.Bots),
		Workers:  len(rec.Workers),
		Clients:  len(rec.Clients),
		Projects: len(rec.Projects),
		Metrics:  s.metrics.Counts(),
	}
}

// LeaseDuration returns the claim lease length.
func (s *Service) LeaseDuration() time.Duration {
	return s.board.LeaseDuration()
}

// --- Internal methods ---

// commitLocked runs the side effects of a task mutation: snapshot, index,
// event, log. Caller must hold s.mu.
func (s *Service) commitLocked(ctx context.Context, event string, t *tasks.Task, actor string) {
	s.saveLocked(ctx)

	if s.index != nil {
		if err := s.index.Put(t); err != nil {
			s.logger.Warn("search_index_failed", map[string]interface{}{"task": t.ID, "error": err.Error()})
		}
	}

	s.logger.TaskEvent(event, t.ID, actor, map[string]interface{}{
		"status":   string(t.Status),
		"attempts": t.Attempts,
	})

	if s.bus == nil {
		return
	}
	ev := &Event{
		Type:     event,
		TaskID:   t.ID,
		Actor:    actor,
		Status:   t.Status,
		Attempts: t.Attempts,
		At:       s.now().UTC(),
		Task:     t,
	}
	data, err := ev.Marshal()
	if err != nil {
		return
	}
	if err := s.bus.Publish(ev.Subject(), data); err != nil {
		s.logger.Debug("event_publish_failed", map[string]interface{}{"subject": ev.Subject(), "error": err.Error()})
	}
}

// saveLocked writes the snapshot. Failures are logged and counted only.
// Caller must hold s.mu.
func (s *Service) saveLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.documentLocked()); err != nil {
		s.metrics.SnapshotFailure(ctx)
		s.logger.SnapshotFailed(s.persister.Key(), err)
	}
}

func (s *Service) documentLocked() *snapshot.Document {
	rec := s.reg.Snapshot()
	return &snapshot.Document{
		Version:  snapshot.Version,
		Bots:     rec.Bots,
		Workers:  rec.Workers,
		Clients:  rec.Clients,
		Projects: rec.Projects,
		Tasks:    s.board.List(),
	}
}

// mapError converts board and registry errors into coded errors.
func mapError(err error, op, taskID, workerID string) error {
	var opts []errors.Option
	if taskID != "" {
		opts = append(opts, errors.WithTaskID(taskID))
	}
	if workerID != "" {
		opts = append(opts, errors.WithWorkerID(workerID))
	}

	switch {
	case stderrors.Is(err, tasks.ErrTaskNotFound), stderrors.Is(err, registry.ErrNotFound):
		return errors.WrapWithCode(err, errors.ErrCodeNotFound, op, opts...)
	case stderrors.Is(err, tasks.ErrIllegalTransition):
		return errors.WrapWithCode(err, errors.ErrCodeIllegalTransition, op, opts...)
	case stderrors.Is(err, tasks.ErrWrongWorker):
		return errors.WrapWithCode(err, errors.ErrCodeOwnership, op, opts...)
	case stderrors.Is(err, tasks.ErrInvalidStatus),
		stderrors.Is(err, tasks.ErrInvalidWorkerID),
		stderrors.Is(err, registry.ErrInvalidID):
		return errors.WrapWithCode(err, errors.ErrCodeInvalidInput, op, opts...)
	default:
		return errors.Wrap(err, op, opts...)
	}
}
