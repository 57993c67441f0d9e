package client

import (
	"encoding/json"
	"time"
)

// EventType identifies what an Event reports.
type EventType string

// Event types
const (
	EventStateChanged       EventType = "state_changed"
	EventReconnectScheduled EventType = "reconnect_scheduled"
	EventGaveUp             EventType = "gave_up"
	EventToolResult         EventType = "tool_result"
	EventServerError        EventType = "server_error"
)

// Event is a notification for the application observing the client.
type Event struct {
	Type EventType
	// State is set for EventStateChanged.
	State State
	// Attempt and Delay are set for reconnect events.
	Attempt int
	Delay   time.Duration

	Tool      string
	RequestID string
	Result    json.RawMessage
	Err       error
}
