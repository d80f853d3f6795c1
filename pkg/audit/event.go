// Package audit records every group request and port transition the
// orchestrator handled.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one audited action.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation EventType     `json:"operation"`
	Group     string        `json:"group,omitempty"`
	Port      string        `json:"port,omitempty"`
	Key       string        `json:"key,omitempty"`
	Members   int           `json:"members,omitempty"`
	Code      string        `json:"code,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Critical  bool          `json:"critical,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeAdd     EventType = "add"
	EventTypeUpdate  EventType = "update"
	EventTypeDelete  EventType = "delete"
	EventTypePrune   EventType = "prune"
	EventTypeRestore EventType = "restore"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Group        string
	Port         string
	Operation    EventType
	StartTime    time.Time
	EndTime      time.Time
	SuccessOnly  bool
	FailureOnly  bool
	CriticalOnly bool
	Limit        int
	Offset       int
}

// NewEvent creates an event with a fresh id.
func NewEvent(op EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: op,
	}
}

// WithGroup sets the group the event is about.
func (e *Event) WithGroup(group, key string, members int) *Event {
	e.Group = group
	e.Key = key
	e.Members = members
	return e
}

// WithPort sets the port the event is about.
func (e *Event) WithPort(port string) *Event {
	e.Port = port
	return e
}

// WithResult records the response code and error of the action.
func (e *Event) WithResult(code string, err error, critical bool) *Event {
	e.Code = code
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	e.Critical = critical
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
