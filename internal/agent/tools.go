package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/planora/planora/internal/intent"
	"github.com/planora/planora/internal/log"
)

type ctxKey int

const userIDKey ctxKey = 0

// WithUserID stores the acting user on the context so tools can scope
// the intents they publish.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the acting user, or empty when unset.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Publisher enqueues intents for asynchronous processing.
type Publisher interface {
	Publish(name string, v any) error
}

// AddTaskInput is the model-facing schema of the addTask tool.
type AddTaskInput struct {
	Title       string `json:"title" jsonschema_description:"Short title of the task, 3-100 characters"`
	Description string `json:"description,omitempty" jsonschema_description:"Optional details, 5-500 characters"`
	Priority    string `json:"priority,omitempty" jsonschema_description:"One of low, medium, high"`
	DueDate     string `json:"dueDate,omitempty" jsonschema_description:"Optional due date in RFC 3339 format"`
}

// ScheduleEventInput is the model-facing schema of the scheduleEvent tool.
type ScheduleEventInput struct {
	Title       string `json:"title" jsonschema_description:"Short title of the event, 3-100 characters"`
	Description string `json:"description" jsonschema_description:"Details of the event, 10-500 characters"`
	StartTime   string `json:"startTime" jsonschema_description:"Start time in RFC 3339 format"`
	EndTime     string `json:"endTime" jsonschema_description:"End time in RFC 3339 format"`
}

// Tools defines the agent's tool set. Tools never fail the generation
// loop on bad input: they return corrective text so the model can fix
// its arguments and try again.
type Tools struct {
	pub    Publisher
	logger log.Logger
}

// NewTools creates the tool set publishing intents through pub.
func NewTools(pub Publisher, logger log.Logger) *Tools {
	return &Tools{pub: pub, logger: logger}
}

// Register defines the tools on g and returns references for
// generation calls.
func (t *Tools) Register(g *genkit.Genkit) []ai.ToolRef {
	addTask := genkit.DefineTool(g, "addTask",
		"Create a new task for the user. Use when the user asks to add, create, or remember a to-do item.",
		t.addTask)

	scheduleEvent := genkit.DefineTool(g, "scheduleEvent",
		"Schedule a calendar event for the user. Use when the user asks to plan, book, or schedule something at a specific time.",
		t.scheduleEvent)

	return []ai.ToolRef{addTask, scheduleEvent}
}

func (t *Tools) addTask(toolCtx *ai.ToolContext, in AddTaskInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) < 3 || len(title) > 100 {
		return "The task was not created: the title must be between 3 and 100 characters. Ask the user for a proper title.", nil
	}
	if in.Description != "" {
		if n := len(in.Description); n < 5 || n > 500 {
			return "The task was not created: the description must be between 5 and 500 characters when provided.", nil
		}
	}

	var dueDate *time.Time
	if in.DueDate != "" {
		due, err := time.Parse(time.RFC3339, in.DueDate)
		if err != nil {
			return "The task was not created: the due date must be a valid RFC 3339 timestamp, for example 2026-03-10T10:00:00Z.", nil
		}
		dueDate = &due
	}

	userID := UserIDFrom(toolCtx)
	if userID == "" {
		return "", fmt.Errorf("addTask: no user in context")
	}

	if err := t.pub.Publish(intent.EventCreateTask, intent.CreateTask{
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Priority:    in.Priority,
		DueDate:     dueDate,
	}); err != nil {
		return "", fmt.Errorf("publishing create-task intent: %w", err)
	}

	t.logger.Debug("addTask intent published", "user_id", userID, "title", title)
	return fmt.Sprintf("Task %q has been created.", title), nil
}

func (t *Tools) scheduleEvent(toolCtx *ai.ToolContext, in ScheduleEventInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) < 3 || len(title) > 100 {
		return "The event was not scheduled: the title must be between 3 and 100 characters.", nil
	}
	if n := len(in.Description); n < 10 || n > 500 {
		return "The event was not scheduled: the description must be between 10 and 500 characters.", nil
	}

	start, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return "The event was not scheduled: the start time must be a valid RFC 3339 timestamp, for example 2026-03-10T10:00:00Z.", nil
	}
	end, err := time.Parse(time.RFC3339, in.EndTime)
	if err != nil {
		return "The event was not scheduled: the end time must be a valid RFC 3339 timestamp.", nil
	}
	if !start.Before(end) {
		return "The event was not scheduled: the start time must be before the end time.", nil
	}

	userID := UserIDFrom(toolCtx)
	if userID == "" {
		return "", fmt.Errorf("scheduleEvent: no user in context")
	}

	if err := t.pub.Publish(intent.EventCreateEvent, intent.CreateEvent{
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		StartTime:   start,
		EndTime:     end,
	}); err != nil {
		return "", fmt.Errorf("publishing create-event intent: %w", err)
	}

	t.logger.Debug("scheduleEvent intent published", "user_id", userID, "title", title)
	return fmt.Sprintf("Event %q has been scheduled from %s to %s.",
		title, start.Format(time.RFC3339), end.Format(time.RFC3339)), nil
}
