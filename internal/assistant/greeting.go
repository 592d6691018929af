package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/intent"
	"github.com/planora/planora/internal/task"
)

const greetingSystem = "You open a conversation with the user. Write one short, warm greeting based on the given context. Do not ask more than one question."

// ComposeGreeting builds the message that opens a new conversation.
// The chat thread is reset first, so the greeting always starts a
// fresh conversation. The subject is chosen by priority: an event that
// ended in the last day, then an event starting within the next day,
// then a random in-progress task. With no subject available the call
// fails with ErrNoTasks.
//
// A greeting identical to the previous one is suppressed: the caller
// gets the fallback text and nothing is recorded, so the user is not
// greeted twice the same way in a row.
func (a *Assistant) ComposeGreeting(ctx context.Context, userID string) (string, error) {
	rec, err := a.chats.Ensure(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading chat for %s: %w", userID, err)
	}
	lastGreeting := rec.LastGreeting

	if _, err := a.chats.Reset(ctx, userID); err != nil {
		return "", fmt.Errorf("resetting chat for %s: %w", userID, err)
	}

	prompt, err := a.greetingPrompt(ctx, userID)
	if err != nil {
		return "", err
	}

	greeting, err := a.completer.Complete(ctx, greetingSystem,
		[]*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))})
	if err != nil {
		a.logger.Warn("greeting generation failed, using fallback",
			"user_id", userID, "error", err)
		return FallbackGreeting, nil
	}

	if greeting == "" || greeting == lastGreeting {
		a.logger.Debug("greeting suppressed", "user_id", userID)
		return FallbackGreeting, nil
	}

	if err := a.pub.Publish(intent.EventSaveInitialMessage, intent.SaveInitialMessage{
		UserID:  userID,
		Message: greeting,
	}); err != nil {
		// The greeting is still useful even if recording it fails.
		a.logger.Error("failed to publish save-initial-message intent",
			"user_id", userID, "error", err)
	}

	return greeting, nil
}

// greetingPrompt picks the greeting subject.
func (a *Assistant) greetingPrompt(ctx context.Context, userID string) (string, error) {
	now := a.now()

	ended, err := a.events.FindEndedWithin(ctx, userID, now, greetingWindow)
	if err == nil {
		return fmt.Sprintf(
			"The user's event %q (%s) ended recently at %s. Greet them and ask how it went.",
			ended.Title, ended.Description, ended.EndTime.Format(time.RFC1123)), nil
	}
	if !errors.Is(err, event.ErrNotFound) {
		return "", fmt.Errorf("finding recent event: %w", err)
	}

	upcoming, err := a.events.FindStartingWithin(ctx, userID, now, greetingWindow)
	if err == nil {
		return fmt.Sprintf(
			"The user's event %q (%s) starts soon at %s. Greet them and mention the upcoming event.",
			upcoming.Title, upcoming.Description, upcoming.StartTime.Format(time.RFC1123)), nil
	}
	if !errors.Is(err, event.ErrNotFound) {
		return "", fmt.Errorf("finding upcoming event: %w", err)
	}

	t, err := a.tasks.RandomInProgress(ctx, userID)
	if err == nil {
		return fmt.Sprintf(
			"The user is working on the task %q (%s). Greet them and ask how it is going.",
			t.Title, t.Description), nil
	}
	if !errors.Is(err, task.ErrNotFound) {
		return "", fmt.Errorf("finding in-progress task: %w", err)
	}

	return "", ErrNoTasks
}
