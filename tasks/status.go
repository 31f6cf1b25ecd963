package tasks

import "strings"

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusOpen indicates the task is waiting for a worker.
	StatusOpen Status = "open"

	// StatusAssigned indicates the task was pushed to a bot but not started.
	StatusAssigned Status = "assigned"

	// StatusInProgress indicates a worker holds the task under a lease.
	StatusInProgress Status = "in_progress"

	// StatusBlocked indicates work is paused on an external dependency.
	StatusBlocked Status = "blocked"

	// StatusReview indicates the work awaits review before delivery.
	StatusReview Status = "review"

	// StatusDelivered indicates the task was delivered. Terminal.
	StatusDelivered Status = "delivered"

	// StatusFailed indicates the holding worker reported a failure.
	StatusFailed Status = "failed"
)

// legacyDeliveredPrefix marks the historical "delivered: <summary>" encoding.
const legacyDeliveredPrefix = "delivered:"

var allStatuses = []Status{
	StatusOpen,
	StatusAssigned,
	StatusInProgress,
	StatusBlocked,
	StatusReview,
	StatusDelivered,
	StatusFailed,
}

// transitions is the general transition table. failed is deliberately
// absent: it is only produced by Fail and only left through Reopen.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusAssigned},
	StatusAssigned:   {StatusInProgress, StatusBlocked, StatusDelivered},
	StatusInProgress: {StatusBlocked, StatusReview, StatusDelivered},
	StatusBlocked:    {StatusInProgress, StatusReview},
	StatusReview:     {StatusInProgress, StatusDelivered},
	StatusDelivered:  nil,
}

// Statuses returns every member of the closed status set.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true for delivered and failed.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// IsHeld returns true for the states that may carry a lease.
func (s Status) IsHeld() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// CanTransitionTo reports whether the general table allows s → to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Normalize folds the legacy "delivered: <text>" encoding into delivered.
// Any other input is returned unchanged.
func Normalize(s string) string {
	if strings.HasPrefix(s, legacyDeliveredPrefix) {
		return string(StatusDelivered)
	}
	return s
}

// ParseStatus normalizes s and returns the matching Status.
// The second result is false if s is not a legal status.
func ParseStatus(s string) (Status, bool) {
	st := Status(Normalize(s))
	if !st.Valid() {
		return "", false
	}
	return st, true
}

// IsValidStatus reports whether s is a legal status string.
func IsValidStatus(s string) bool {
	_, ok := ParseStatus(s)
	return ok
}

// CanTransition reports whether a task in status from may move to status to.
// Unknown statuses never transition.
func CanTransition(from, to string) bool {
	f, ok := ParseStatus(from)
	if !ok {
		return false
	}
	t, ok := ParseStatus(to)
	if !ok {
		return false
	}
	return f.CanTransitionTo(t)
}

// legacySummary extracts the text embedded in a legacy delivered status.
func legacySummary(s string) (string, bool) {
	if !strings.HasPrefix(s, legacyDeliveredPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(s, legacyDeliveredPrefix)), true
}
