package tasks

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Board owns the task records and runs the claim queue.
// Tasks are kept in insertion order, which is the claim scan order.
type Board struct {
	order []*Task
	byID  map[string]*Task
	now   func() time.Time
	idGen func() string
	lease time.Duration
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithClock sets the time source used for leases and timestamps.
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) {
		b.now = now
	}
}

// WithIDGenerator sets a custom ID generator function.
func WithIDGenerator(gen func() string) BoardOption {
	return func(b *Board) {
		b.idGen = gen
	}
}

// WithLeaseDuration overrides DefaultLeaseDuration.
func WithLeaseDuration(d time.Duration) BoardOption {
	return func(b *Board) {
		if d > 0 {
			b.lease = d
		}
	}
}

// NewBoard creates an empty board.
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{
		byID:  make(map[string]*Task),
		now:   time.Now,
		idGen: generateID,
		lease: DefaultLeaseDuration,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LeaseDuration returns the configured lease length.
func (b *Board) LeaseDuration() time.Duration {
	return b.lease
}

// Len returns the number of tasks on the board.
func (b *Board) Len() int {
	return len(b.order)
}

// Intake creates a new open task and returns a copy of it.
func (b *Board) Intake(projectID, title, description string) *Task {
	now := b.now()
	t := &Task{
		ID:          b.idGen(),
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.order = append(b.order, t)
	b.byID[t.ID] = t
	return t.Clone()
}

// Get retrieves a task by ID.
func (b *Board) Get(id string) (*Task, error) {
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Assign pushes a task to a bot. The task must be able to move to assigned.
// The bot holds the task under a lease, so an assignment that never starts
// becomes claimable again once the lease runs out.
func (b *Board) Assign(id, botID string) (*Task, error) {
	if botID == "" {
		return nil, ErrInvalidWorkerID
	}
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(StatusAssigned) {
		return nil, illegal(t, StatusAssigned)
	}
	b.hold(t, botID, StatusAssigned, b.now())
	return t.Clone(), nil
}

// Claim hands the first claimable task, in insertion order, to workerID.
// The second result is false when nothing is available.
func (b *Board) Claim(workerID string) (*Task, bool) {
	if workerID == "" {
		return nil, false
	}
	now := b.now()
	for _, t := range b.order {
		if !t.Claimable(now) {
			continue
		}
		b.hold(t, workerID, StatusInProgress, now)
		t.Attempts++
		return t.Clone(), true
	}
	return nil, false
}

// hold is the single place where a task acquires a holder and a lease.
// Assign and Claim both go through it.
func (b *Board) hold(t *Task, holder string, to Status, now time.Time) {
	lease := now.Add(b.lease)
	t.Assignee = holder
	t.Status = to
	t.LeaseExpiresAt = &lease
	t.UpdatedAt = now
}

// release moves a task into a status that carries no lease.
func (b *Board) release(t *Task, to Status) {
	t.Status = to
	t.LeaseExpiresAt = nil
	t.UpdatedAt = b.now()
}

// Complete records a successful delivery by the worker holding the task.
// Completing an already delivered task as its assignee is a no-op.
// The task must be assigned or in_progress; a task parked in blocked or
// review goes back to in_progress first.
func (b *Board) Complete(id, workerID, summary string) (*Task, error) {
	t, err := b.owned(id, workerID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusDelivered {
		return t.Clone(), nil
	}
	if !t.Status.IsHeld() {
		return nil, illegal(t, StatusDelivered)
	}
	t.DeliverySummary = summary
	b.release(t, StatusDelivered)
	return t.Clone(), nil
}

// Fail records a failure reported by the worker holding the task.
// Failing an already failed task as its assignee is a no-op.
func (b *Board) Fail(id, workerID, reason string) (*Task, error) {
	t, err := b.owned(id, workerID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusFailed {
		return t.Clone(), nil
	}
	if !t.Status.IsHeld() {
		return nil, illegal(t, StatusFailed)
	}
	t.LastError = reason
	b.release(t, StatusFailed)
	return t.Clone(), nil
}

// UpdateStatus applies a general transition. A legacy "delivered: <text>"
// value is accepted; its text becomes the delivery summary.
// It never produces assigned, since only Assign names a holder. Resuming
// into in_progress renews the current holder's lease.
func (b *Board) UpdateStatus(id, status string) (*Task, error) {
	to, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(to) {
		return nil, illegal(t, to)
	}
	switch {
	case to == StatusAssigned:
		return nil, fmt.Errorf("%w: task %s has no holder; use assign", ErrIllegalTransition, t.ID)
	case to.IsHeld():
		if t.Assignee == "" {
			return nil, fmt.Errorf("%w: task %s has no holder to resume", ErrIllegalTransition, t.ID)
		}
		b.hold(t, t.Assignee, to, b.now())
	default:
		if text, legacy := legacySummary(status); legacy && text != "" {
			t.DeliverySummary = text
		}
		b.release(t, to)
	}
	return t.Clone(), nil
}

// Deliver marks a task delivered without an ownership check.
func (b *Board) Deliver(id, summary string) (*Task, error) {
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(StatusDelivered) {
		return nil, illegal(t, StatusDelivered)
	}
	t.DeliverySummary = summary
	b.release(t, StatusDelivered)
	return t.Clone(), nil
}

// Reopen returns a failed task to open so it can be claimed again.
// Attempts and LastError are kept.
func (b *Board) Reopen(id string) (*Task, error) {
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusFailed {
		return nil, illegal(t, StatusOpen)
	}
	t.Assignee = ""
	b.release(t, StatusOpen)
	return t.Clone(), nil
}

// List returns copies of all tasks in insertion order.
func (b *Board) List() []*Task {
	out := make([]*Task, 0, len(b.order))
	for _, t := range b.order {
		out = append(out, t.Clone())
	}
	return out
}

// ListByTitle returns copies of all tasks sorted by title.
// Tasks with equal titles keep insertion order.
func (b *Board) ListByTitle() []*Task {
	out := b.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Title < out[j].Title
	})
	return out
}

// Backlog returns copies of the tasks a claim could pick up right now.
func (b *Board) Backlog() []*Task {
	now := b.now()
	var out []*Task
	for _, t := range b.order {
		if t.Claimable(now) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Counts returns the number of tasks in each status.
func (b *Board) Counts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, t := range b.order {
		counts[t.Status]++
	}
	return counts
}

// HeldBy returns copies of the tasks currently assigned to holder
// that are not in a terminal state.
func (b *Board) HeldBy(holder string) []*Task {
	var out []*Task
	for _, t := range b.order {
		if t.Assignee == holder && !t.Status.IsTerminal() {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Restore replaces the board's contents with tasks, keeping their order.
// Duplicate IDs after the first occurrence are ignored.
func (b *Board) Restore(tasks []*Task) {
	b.order = make([]*Task, 0, len(tasks))
	b.byID = make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if _, dup := b.byID[t.ID]; dup {
			continue
		}
		c := t.Clone()
		b.order = append(b.order, c)
		b.byID[c.ID] = c
	}
}

// Internal methods

func (b *Board) lookup(id string) (*Task, error) {
	t, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// owned looks up a task and checks that workerID is its assignee.
// The ownership check comes before any status check.
func (b *Board) owned(id, workerID string) (*Task, error) {
	if workerID == "" {
		return nil, ErrInvalidWorkerID
	}
	t, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if t.Assignee != workerID {
		return nil, fmt.Errorf("%w: task %s held by %q, not %q", ErrWrongWorker, id, t.Assignee, workerID)
	}
	return t, nil
}

func illegal(t *Task, to Status) error {
	return fmt.Errorf("%w: task %s is %s, cannot move to %s", ErrIllegalTransition, t.ID, t.Status, to)
}

func generateID() string {
	return uuid.New().String()
}
