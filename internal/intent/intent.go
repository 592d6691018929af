// Package intent defines the events the assistant publishes to the bus
// and the consumers that apply them to storage. Consumers are
// idempotent with respect to redelivery: a retried envelope whose work
// already landed is treated as success.
package intent

import "time"

// Event names.
const (
	EventCreateTask         = "create-task"
	EventCreateEvent        = "create-event"
	EventSaveInitialMessage = "save-initial-message"
)

// CreateTask is the payload of EventCreateTask.
type CreateTask struct {
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// CreateEvent is the payload of EventCreateEvent.
type CreateEvent struct {
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// SaveInitialMessage is the payload of EventSaveInitialMessage.
type SaveInitialMessage struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}
