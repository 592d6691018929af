// Package agent implements the tool-calling agent: a generation loop
// in which the model may invoke tools that publish intents, plus
// per-session conversation memory.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/planora/planora/internal/log"
)

// ErrExecutionFailed wraps agent run failures.
var ErrExecutionFailed = errors.New("agent execution failed")

// Generator runs a model generation call. Satisfied by
// gateway.Gateway.
type Generator interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// Config configures the executor.
type Config struct {
	System   string // system prompt
	MaxTurns int    // tool-calling round limit per execution
}

// Executor runs agent conversations. Tool calls happen inside the
// generation loop; session history is persisted only after the whole
// loop succeeds.
type Executor struct {
	gen      Generator
	tools    []ai.ToolRef
	sessions SessionStore
	system   string
	maxTurns int
	logger   log.Logger
}

// NewExecutor creates an executor.
func NewExecutor(gen Generator, tools []ai.ToolRef, sessions SessionStore, cfg Config, logger log.Logger) *Executor {
	maxTurns := cfg.MaxTurns
	if maxTurns < 1 {
		maxTurns = 5
	}

	return &Executor{
		gen:      gen,
		tools:    tools,
		sessions: sessions,
		system:   cfg.System,
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// Execute runs one agent turn: prior session history plus the new user
// message go to the model, tools may fire, and the final text comes
// back. The session grows by the user message and the final reply.
func (e *Executor) Execute(ctx context.Context, sessionID, userID, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("%w: empty message", ErrExecutionFailed)
	}

	ctx = WithUserID(ctx, userID)

	history, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: loading session %s: %w", ErrExecutionFailed, sessionID, err)
	}

	userMsg := ai.NewUserMessage(ai.NewTextPart(message))
	msgs := make([]*ai.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, userMsg)

	opts := []ai.GenerateOption{
		ai.WithMessages(msgs...),
		ai.WithMaxTurns(e.maxTurns),
	}
	if e.system != "" {
		opts = append(opts, ai.WithSystem(e.system))
	}
	if len(e.tools) > 0 {
		opts = append(opts, ai.WithTools(e.tools...))
	}

	resp, err := e.gen.Generate(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	reply := resp.Text()

	// History is appended only after the loop succeeds, so a failed
	// run never leaves a dangling user message in the session.
	if err := e.sessions.Append(ctx, sessionID, userMsg, ai.NewModelMessage(ai.NewTextPart(reply))); err != nil {
		return "", fmt.Errorf("%w: saving session %s: %w", ErrExecutionFailed, sessionID, err)
	}

	e.logger.Debug("agent turn complete",
		"session_id", sessionID,
		"user_id", userID,
		"reply_len", len(reply),
	)
	return reply, nil
}
