// Package convo implements the conversation graph engine: a fixed
// start-model-end graph whose per-thread history is checkpointed after
// every successful invocation.
package convo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/planora/planora/internal/log"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// ErrEmptyMessage is returned when Invoke is called with a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// ModelCaller sends a conversation to the language model and returns
// its text reply.
type ModelCaller interface {
	Complete(ctx context.Context, system string, msgs []*ai.Message) (string, error)
}

// Engine runs the conversation graph. Invocations on the same thread
// are serialized so concurrent requests cannot interleave their
// read-modify-write of the checkpoint.
type Engine struct {
	model  ModelCaller
	check  Checkpointer
	system string
	logger log.Logger

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// NewEngine creates an engine. system may be empty.
func NewEngine(model ModelCaller, check Checkpointer, system string, logger log.Logger) *Engine {
	return &Engine{
		model:   model,
		check:   check,
		system:  system,
		logger:  logger,
		threads: make(map[string]*sync.Mutex),
	}
}

// threadLock returns the mutex serializing the given thread.
func (e *Engine) threadLock(threadID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.threads[threadID]
	if !ok {
		m = &sync.Mutex{}
		e.threads[threadID] = m
	}
	return m
}

// Invoke appends the user message to the thread's history, walks the
// graph, checkpoints the grown history, and returns the model's reply.
// The checkpoint is only written after a successful model call, so a
// failed invocation leaves the thread unchanged.
func (e *Engine) Invoke(ctx context.Context, threadID, message string) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}

	lock := e.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	st, err := e.check.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread %s: %w", threadID, err)
	}

	st.Messages = append(st.Messages, Message{Role: roleUser, Content: message})

	var reply string
	for node := NodeStart; node != NodeEnd; node = node.next() {
		if node != NodeModel {
			continue
		}
		reply, err = e.model.Complete(ctx, e.system, toAIMessages(st.Messages))
		if err != nil {
			return "", fmt.Errorf("model node for thread %s: %w", threadID, err)
		}
	}

	st.Messages = append(st.Messages, Message{Role: roleModel, Content: reply})

	if err := e.check.Save(ctx, threadID, st); err != nil {
		return "", fmt.Errorf("checkpointing thread %s: %w", threadID, err)
	}

	e.logger.Debug("invoked conversation graph",
		"thread_id", threadID,
		"history_len", len(st.Messages),
	)
	return reply, nil
}

// History returns the thread's checkpointed messages.
func (e *Engine) History(ctx context.Context, threadID string) ([]Message, error) {
	st, err := e.check.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return st.Messages, nil
}

func toAIMessages(msgs []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		part := ai.NewTextPart(m.Content)
		if m.Role == roleModel {
			out = append(out, ai.NewModelMessage(part))
		} else {
			out = append(out, ai.NewUserMessage(part))
		}
	}
	return out
}
