package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/planora/planora/internal/log"
)

// Checkpointer persists per-thread conversation state. Load returns an
// empty state for threads that have never been saved.
type Checkpointer interface {
	Load(ctx context.Context, threadID string) (*State, error)
	Save(ctx context.Context, threadID string, st *State) error
}

// MemoryCheckpointer keeps thread state in process memory. Used in
// tests and as a fallback when no database is configured.
//
// Safe for concurrent use.
type MemoryCheckpointer struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{states: make(map[string]*State)}
}

// Load returns a copy of the thread's state, or an empty state for an
// unknown thread.
func (m *MemoryCheckpointer) Load(_ context.Context, threadID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[threadID]
	if !ok {
		return &State{}, nil
	}
	return st.Clone(), nil
}

// Save stores a copy of the thread's state.
func (m *MemoryCheckpointer) Save(_ context.Context, threadID string, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[threadID] = st.Clone()
	return nil
}

// DB is the subset of pgxpool.Pool the Postgres checkpointer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCheckpointer persists thread state as jsonb rows.
//
// Safe for concurrent use.
type PostgresCheckpointer struct {
	db     DB
	logger log.Logger
}

// NewPostgresCheckpointer creates a checkpointer backed by db.
func NewPostgresCheckpointer(db DB, logger log.Logger) *PostgresCheckpointer {
	return &PostgresCheckpointer{db: db, logger: logger}
}

// Load reads the thread's checkpoint. An unknown thread or a corrupt
// payload yields an empty state.
func (p *PostgresCheckpointer) Load(ctx context.Context, threadID string) (*State, error) {
	const q = `SELECT state FROM thread_checkpoints WHERE thread_id = $1`

	var raw []byte
	if err := p.db.QueryRow(ctx, q, threadID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	st := decodeState(raw)
	if len(raw) > 0 && len(st.Messages) == 0 && st.UpdatedAt.IsZero() {
		p.logger.Warn("checkpoint unreadable, starting thread fresh", "thread_id", threadID)
	}
	return st, nil
}

// Save upserts the thread's checkpoint.
func (p *PostgresCheckpointer) Save(ctx context.Context, threadID string, st *State) error {
	st.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	const q = `
		INSERT INTO thread_checkpoints (thread_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id) DO UPDATE SET state = $2, updated_at = $3`
	if _, err := p.db.Exec(ctx, q, threadID, raw, st.UpdatedAt); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	return nil
}
