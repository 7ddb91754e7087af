// Package audit records every mutating catalog operation.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one audited operation.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	User      string          `json:"user"`
	Operation string          `json:"operation"`
	Lab       string          `json:"lab,omitempty"`
	Node      string          `json:"node,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Lab         string
	Node        string
	User        string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Operation: operation,
	}
}

// WithLab sets the lab the operation targeted
func (e *Event) WithLab(labID string) *Event {
	e.Lab = labID
	return e
}

// WithNode sets the node the operation targeted
func (e *Event) WithNode(nodeID string) *Event {
	e.Node = nodeID
	return e
}

// WithParams records the operation's arguments
func (e *Event) WithParams(params json.RawMessage) *Event {
	e.Params = params
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(code string, err error) *Event {
	e.Success = false
	e.ErrorCode = code
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// Matches reports whether the event satisfies every criterion of f.
func (f Filter) Matches(event *Event) bool {
	if f.Lab != "" && event.Lab != f.Lab {
		return false
	}
	if f.Node != "" && event.Node != f.Node {
		return false
	}
	if f.User != "" && event.User != f.User {
		return false
	}
	if f.Operation != "" && event.Operation != f.Operation {
		return false
	}
	if !f.StartTime.IsZero() && event.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && event.Timestamp.After(f.EndTime) {
		return false
	}
	if f.SuccessOnly && !event.Success {
		return false
	}
	if f.FailureOnly && event.Success {
		return false
	}
	return true
}

// page applies Offset and Limit.
func (f Filter) page(events []*Event) []*Event {
	if f.Offset > 0 {
		if f.Offset >= len(events) {
			return []*Event{}
		}
		events = events[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}
