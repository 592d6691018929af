package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planora/planora/internal/bus"
	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/task"
)

// TaskWriter creates tasks.
type TaskWriter interface {
	Create(ctx context.Context, t *task.Task) (*task.Task, error)
}

// EventWriter creates events.
type EventWriter interface {
	Create(ctx context.Context, e *event.Event) (*event.Event, error)
}

// GreetingWriter records composed greetings.
type GreetingWriter interface {
	SaveGreeting(ctx context.Context, userID, greeting string) error
}

// Consumers applies published intents to storage.
type Consumers struct {
	tasks     TaskWriter
	events    EventWriter
	greetings GreetingWriter
	logger    log.Logger
}

// NewConsumers creates the consumer set.
func NewConsumers(tasks TaskWriter, events EventWriter, greetings GreetingWriter, logger log.Logger) *Consumers {
	return &Consumers{
		tasks:     tasks,
		events:    events,
		greetings: greetings,
		logger:    logger,
	}
}

// Register subscribes all consumers on the bus.
func (c *Consumers) Register(b *bus.Bus) error {
	if err := b.Subscribe(EventCreateTask, c.handleCreateTask); err != nil {
		return err
	}
	if err := b.Subscribe(EventCreateEvent, c.handleCreateEvent); err != nil {
		return err
	}
	return b.Subscribe(EventSaveInitialMessage, c.handleSaveInitialMessage)
}

// handleCreateTask creates the task. Validation failures and duplicate
// titles are terminal: retrying them cannot succeed, and a duplicate
// title on redelivery means an earlier attempt already landed.
func (c *Consumers) handleCreateTask(ctx context.Context, env bus.Envelope) error {
	var p CreateTask
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logger.Error("undecodable create-task payload", "id", env.ID, "error", err)
		return nil
	}

	desc := p.Description
	if desc == "" {
		desc = task.DefaultDescription
	}

	created, err := c.tasks.Create(ctx, &task.Task{
		UserID:      p.UserID,
		Title:       p.Title,
		Description: desc,
		Status:      task.StatusOpen,
		Priority:    task.NormalizePriority(p.Priority),
		DueDate:     p.DueDate,
	})
	if err != nil {
		if errors.Is(err, task.ErrDuplicateTitle) {
			c.logger.Debug("task already exists, treating as delivered",
				"user_id", p.UserID, "title", p.Title)
			return nil
		}
		if errors.Is(err, task.ErrValidation) {
			c.logger.Error("invalid create-task intent dropped",
				"user_id", p.UserID, "title", p.Title, "error", err)
			return nil
		}
		return fmt.Errorf("creating task: %w", err)
	}

	c.logger.Info("task created from intent", "id", created.ID, "user_id", created.UserID)
	return nil
}

// handleCreateEvent creates the event. Validation failures and
// schedule conflicts are terminal; a conflict on redelivery means an
// earlier attempt already landed.
func (c *Consumers) handleCreateEvent(ctx context.Context, env bus.Envelope) error {
	var p CreateEvent
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logger.Error("undecodable create-event payload", "id", env.ID, "error", err)
		return nil
	}

	created, err := c.events.Create(ctx, &event.Event{
		UserID:      p.UserID,
		Title:       p.Title,
		Description: p.Description,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
	})
	if err != nil {
		if errors.Is(err, event.ErrConflict) {
			c.logger.Debug("event slot occupied, treating as delivered",
				"user_id", p.UserID, "title", p.Title)
			return nil
		}
		if errors.Is(err, event.ErrValidation) {
			c.logger.Error("invalid create-event intent dropped",
				"user_id", p.UserID, "title", p.Title, "error", err)
			return nil
		}
		return fmt.Errorf("creating event: %w", err)
	}

	c.logger.Info("event created from intent", "id", created.ID, "user_id", created.UserID)
	return nil
}

// handleSaveInitialMessage records the greeting. Saving the same
// greeting twice is harmless, so any storage error is retried.
func (c *Consumers) handleSaveInitialMessage(ctx context.Context, env bus.Envelope) error {
	var p SaveInitialMessage
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		c.logger.Error("undecodable save-initial-message payload", "id", env.ID, "error", err)
		return nil
	}
	if p.Message == "" {
		c.logger.Error("empty save-initial-message intent dropped", "user_id", p.UserID)
		return nil
	}

	if err := c.greetings.SaveGreeting(ctx, p.UserID, p.Message); err != nil {
		return fmt.Errorf("saving greeting: %w", err)
	}
	return nil
}

// Ensure chatlog.Store satisfies GreetingWriter.
var _ GreetingWriter = (*chatlog.Store)(nil)
