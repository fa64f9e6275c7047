package streaming

import (
	"context"
	"time"
)

// StreamEvent is a change notification emitted by the collection store or
// the simulator.
type StreamEvent struct {
	ID         uint64    `json:"id"`
	WorkflowID string    `json:"workflowId,omitempty"`
	NodeID     string    `json:"nodeId,omitempty"`
	EdgeID     string    `json:"edgeId,omitempty"`
	RunID      string    `json:"runId,omitempty"`
	EventType  string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	WorkflowID string   `json:"workflowId,omitempty"`
	RunID      string   `json:"runId,omitempty"`
	EventTypes []string `json:"eventTypes,omitempty"`
}

// EventHub provides pub/sub for editor and run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
