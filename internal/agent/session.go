package agent

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// SessionStore persists per-session conversation history for the
// executor. Load returns an empty history for unknown sessions.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]*ai.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...*ai.Message) error
}

// MemorySessionStore keeps session history in process memory with
// per-session serialization, so concurrent appends to the same session
// cannot interleave.
//
// Safe for concurrent use.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string][]*ai.Message
	locks    map[string]*sync.Mutex
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string][]*ai.Message),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *MemorySessionStore) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Load returns a copy of the session's history.
func (m *MemorySessionStore) Load(_ context.Context, sessionID string) ([]*ai.Message, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	msgs := m.sessions[sessionID]
	m.mu.Unlock()

	cp := make([]*ai.Message, len(msgs))
	copy(cp, msgs)
	return cp, nil
}

// Append adds messages to the session's history.
func (m *MemorySessionStore) Append(_ context.Context, sessionID string, msgs ...*ai.Message) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msgs...)
	m.mu.Unlock()
	return nil
}
