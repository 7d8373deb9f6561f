// Package events defines the broker channel names and the envelope
// pushed to transport clients.
package events

import "encoding/json"

// Fixed broker channel names for task lifecycle events. Publishers and
// subscribers rendezvous by exact name match; these values are part of
// the external contract and must not change.
const (
	TaskCreated = "TASK_CREATED"
	TaskUpdated = "TASK_UPDATED"
	TaskDeleted = "TASK_DELETED"
)

// Channels returns the full set of task lifecycle channels, in the order
// the gateway subscribes to them.
func Channels() []string {
	return []string{TaskCreated, TaskUpdated, TaskDeleted}
}

// Envelope is the frame pushed to connected transport clients: the
// channel the message arrived on as the event type, plus the task
// payload exactly as it was published. It is ephemeral and never persisted.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
