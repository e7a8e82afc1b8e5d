package types

import "time"

// EventType enumerates lifecycle notifications delivered to the webhook.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventStepAborted       EventType = "step_aborted"
)

// Event is the webhook payload for a single lifecycle notification.
type Event struct {
	Event      EventType              `json:"event"`
	WorkflowID string                 `json:"workflow_id"`
	Namespace  string                 `json:"namespace"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
}
