package service

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/orchestrator/tasks"
)

// EventSubjectPrefix prefixes every task event subject.
const EventSubjectPrefix = "tasks."

// Event types.
const (
	EventIntake    = "intake"
	EventAssigned  = "assigned"
	EventClaimed   = "claimed"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventStatus    = "status"
	EventDelivered = "delivered"
	EventReopened  = "reopened"
)

// Event announces a task mutation.
type Event struct {
	Type     string       `json:"type"`
	TaskID   string       `json:"task_id"`
	Actor    string       `json:"actor,omitempty"`
	Status   tasks.Status `json:"status"`
	Attempts int          `json:"attempts"`
	At       time.Time    `json:"at"`
	Task     *tasks.Task  `json:"task"`
}

// Subject returns the bus subject for the event.
func (e *Event) Subject() string {
	return EventSubjectPrefix + e.Type
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent parses an event published by a Service.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
