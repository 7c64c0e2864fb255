package domain

import "time"

// EventType identifies a run event
type EventType string

const (
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeNodeStatus   EventType = "node.status"
	EventTypeNodeError    EventType = "node.error"
	EventTypeGraphChanged EventType = "graph.changed"
	EventTypeGraphCleared EventType = "graph.cleared"
)

// Event is published on the event bus while an editor session is used
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
