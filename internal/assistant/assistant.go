// Package assistant is the conversational front of the system. It
// dispatches chat messages across the three interaction modes and
// composes the initial greeting shown when a user opens a chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/task"
)

// Mode selects how a chat message is answered.
type Mode string

const (
	// ModeLLM answers with a single stateless completion over the
	// stored transcript.
	ModeLLM Mode = "llm"
	// ModeAsk answers through the conversation graph engine with
	// thread-checkpointed history.
	ModeAsk Mode = "ask"
	// ModeAgent answers through the tool-calling agent.
	ModeAgent Mode = "agent"
)

var (
	// ErrInvalidMode is returned for an unrecognized chat mode.
	ErrInvalidMode = errors.New("invalid chat mode")

	// ErrEmptyMessage is returned when the chat message is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoTasks is returned by ComposeGreeting when the user has no
	// recent events and no in-progress tasks to greet about.
	ErrNoTasks = errors.New("no tasks found")
)

// FallbackGreeting is returned when the model cannot produce a fresh
// greeting.
const FallbackGreeting = "Hello! How can I assist you today?"

// greetingWindow bounds how far around now events are considered when
// picking a greeting subject.
const greetingWindow = 24 * time.Hour

// ParseMode validates a mode string. Empty selects ModeAsk.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAsk, nil
	case ModeLLM, ModeAsk, ModeAgent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ChatStore persists transcripts and greeting state.
type ChatStore interface {
	Get(ctx context.Context, userID string) (*chatlog.Record, error)
	Ensure(ctx context.Context, userID string) (*chatlog.Record, error)
	Reset(ctx context.Context, userID string) (uuid.UUID, error)
	AppendTurns(ctx context.Context, userID string, turns ...chatlog.Turn) error
}

// Completer performs a single stateless model completion.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []*ai.Message) (string, error)
}

// Converser runs the conversation graph for a thread.
type Converser interface {
	Invoke(ctx context.Context, threadID, message string) (string, error)
}

// AgentRunner runs the tool-calling agent for a session.
type AgentRunner interface {
	Execute(ctx context.Context, sessionID, userID, message string) (string, error)
}

// TaskFinder picks greeting subjects from the user's tasks.
type TaskFinder interface {
	RandomInProgress(ctx context.Context, userID string) (*task.Task, error)
}

// EventFinder picks greeting subjects from the user's calendar.
type EventFinder interface {
	FindEndedWithin(ctx context.Context, userID string, now time.Time, d time.Duration) (*event.Event, error)
	FindStartingWithin(ctx context.Context, userID string, now time.Time, d time.Duration) (*event.Event, error)
}

// Publisher enqueues intents for asynchronous processing.
type Publisher interface {
	Publish(name string, v any) error
}

// Assistant dispatches chat messages and composes greetings.
type Assistant struct {
	chats     ChatStore
	completer Completer
	converser Converser
	runner    AgentRunner
	tasks     TaskFinder
	events    EventFinder
	pub       Publisher
	logger    log.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an assistant.
func New(
	chats ChatStore,
	completer Completer,
	converser Converser,
	runner AgentRunner,
	tasks TaskFinder,
	events EventFinder,
	pub Publisher,
	logger log.Logger,
) *Assistant {
	return &Assistant{
		chats:     chats,
		completer: completer,
		converser: converser,
		runner:    runner,
		tasks:     tasks,
		events:    events,
		pub:       pub,
		logger:    logger,
		now:       time.Now,
	}
}

const chatSystem = "You are a helpful personal assistant managing the user's tasks and calendar. Be concise and friendly."

// Handle answers one chat message in the given mode. A user without a
// chat record gets chatlog.ErrNotFound; records are only created by
// ComposeGreeting. Only ask mode writes to the transcript, and only
// after the graph call produced a reply, so the record holds committed
// turns exclusively. LLM mode is stateless and agent mode keeps its
// own session memory.
func (a *Assistant) Handle(ctx context.Context, userID, message string, mode Mode) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}

	rec, err := a.chats.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading chat for %s: %w", userID, err)
	}

	var reply string
	switch mode {
	case ModeLLM:
		reply, err = a.completer.Complete(ctx, chatSystem, flattenTranscript(rec.Turns, message))
	case ModeAsk:
		reply, err = a.converser.Invoke(ctx, a.threadID(rec, userID), message)
	case ModeAgent:
		reply, err = a.runner.Execute(ctx, a.threadID(rec, userID), userID, message)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err != nil {
		return "", err
	}

	if mode == ModeAsk {
		if err := a.chats.AppendTurns(ctx, userID,
			chatlog.NewUserTurn(message, string(mode)),
			chatlog.NewBotTurn(reply, string(mode)),
		); err != nil {
			return "", fmt.Errorf("recording chat turns: %w", err)
		}
	}

	a.logger.Debug("chat handled", "user_id", userID, "mode", mode)
	return reply, nil
}

// threadID returns the chat's conversation thread key, falling back to
// the user ID when the record has no thread yet.
func (a *Assistant) threadID(rec *chatlog.Record, userID string) string {
	if rec.ThreadID == uuid.Nil {
		return userID
	}
	return rec.ThreadID.String()
}

// flattenTranscript converts the stored transcript plus the new
// message into model messages.
func flattenTranscript(turns []chatlog.Turn, message string) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(turns)+1)
	for _, t := range turns {
		part := ai.NewTextPart(t.Content)
		if t.Role == chatlog.RoleBot {
			msgs = append(msgs, ai.NewModelMessage(part))
		} else {
			msgs = append(msgs, ai.NewUserMessage(part))
		}
	}
	return append(msgs, ai.NewUserMessage(ai.NewTextPart(message)))
}
