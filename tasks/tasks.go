package tasks

import (
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrIllegalTransition indicates the status change is not permitted.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvalidStatus indicates a status string outside the closed set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrWrongWorker indicates the caller is not the current assignee.
	ErrWrongWorker = errors.New("task held by different worker")

	// ErrInvalidWorkerID indicates an empty worker or bot ID.
	ErrInvalidWorkerID = errors.New("invalid worker ID")
)

// DefaultLeaseDuration is how long a claim or push assignment holds a task.
const DefaultLeaseDuration = 300 * time.Second

// Task is a unit of work tracked by the board.
type Task struct {
	// ID is the unique identifier for the task. Immutable.
	ID string `json:"id"`

	// ProjectID references the owning project. Not validated.
	ProjectID string `json:"project_id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Assignee is the worker or bot holding the task, if any.
	Assignee string `json:"assignee,omitempty"`

	// LeaseExpiresAt is set only while the task is assigned or in progress.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	// Attempts counts successful claims.
	Attempts int `json:"attempts"`

	// LastError is the most recent failure reported for the task.
	LastError string `json:"last_error,omitempty"`

	// DeliverySummary is the most recent delivery text.
	DeliverySummary string `json:"delivery_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone creates a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := *t
	if t.LeaseExpiresAt != nil {
		lease := *t.LeaseExpiresAt
		clone.LeaseExpiresAt = &lease
	}
	return &clone
}

// LeaseActive reports whether the task is held under an unexpired lease.
func (t *Task) LeaseActive(now time.Time) bool {
	return t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now)
}

// Claimable reports whether a worker may claim the task at now: it must be
// open or held, and not under a current lease. A held task whose lease ran
// out belongs to a worker that stopped reporting, so it is up for grabs.
func (t *Task) Claimable(now time.Time) bool {
	switch t.Status {
	case StatusOpen, StatusAssigned, StatusInProgress:
		return !t.LeaseActive(now)
	default:
		return false
	}
}

// Migrate rewrites a record read from an older snapshot into the canonical
// form. A legacy "delivered: <text>" status becomes delivered, with the text
// moved into DeliverySummary when no summary is recorded. It also drops a
// lease that a non-held status must not carry. It returns true if anything
// changed, and an error if the status is not recognizable at all.
func (t *Task) Migrate() (bool, error) {
	changed := false
	if text, ok := legacySummary(string(t.Status)); ok {
		t.Status = StatusDelivered
		if t.DeliverySummary == "" {
			t.DeliverySummary = text
		}
		changed = true
	}
	if !t.Status.Valid() {
		return changed, fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.LeaseExpiresAt != nil && !t.Status.IsHeld() {
		t.LeaseExpiresAt = nil
		changed = true
	}
	return changed, nil
}
