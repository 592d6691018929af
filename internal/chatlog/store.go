package chatlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/planora/internal/log"
)

// Store persists chat records in PostgreSQL. Reset and AppendTurns use
// transactions so the chat row and its turns stay consistent.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a chat store backed by pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Get retrieves the user's chat record including all turns in order.
// Returns ErrNotFound when the user has never chatted.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	const chatQ = `
		SELECT user_id, thread_id, last_greeting, created_at, updated_at
		FROM chats
		WHERE user_id = $1`

	var r Record
	err := s.pool.QueryRow(ctx, chatQ, userID).Scan(
		&r.UserID, &r.ThreadID, &r.LastGreeting, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chat: %w", err)
	}

	const turnsQ = `
		SELECT id, role, content, mode, created_at
		FROM chat_turns
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, turnsQ, userID)
	if err != nil {
		return nil, fmt.Errorf("getting chat turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.Mode, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat turn: %w", err)
		}
		r.Turns = append(r.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chat turns: %w", err)
	}

	return &r, nil
}

// Ensure returns the user's chat record, creating an empty one with a
// fresh thread ID if none exists.
func (s *Store) Ensure(ctx context.Context, userID string) (*Record, error) {
	r, err := s.Get(ctx, userID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	threadID := uuid.New()
	now := time.Now().UTC()
	const q = `
		INSERT INTO chats (user_id, thread_id, last_greeting, created_at, updated_at)
		VALUES ($1, $2, '', $3, $3)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, userID, threadID, now); err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	// Re-read in case a concurrent Ensure won the insert.
	return s.Get(ctx, userID)
}

// Reset rotates the user's thread ID and clears the transcript,
// creating the chat record if needed. Returns the new thread ID.
func (s *Store) Reset(ctx context.Context, userID string) (uuid.UUID, error) {
	threadID := uuid.New()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("rollback after reset", "error", err)
		}
	}()

	const upsertQ = `
		INSERT INTO chats (user_id, thread_id, last_greeting, created_at, updated_at)
		VALUES ($1, $2, '', $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET thread_id = $2, updated_at = $3`
	if _, err := tx.Exec(ctx, upsertQ, userID, threadID, now); err != nil {
		return uuid.Nil, fmt.Errorf("rotating thread: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chat_turns WHERE user_id = $1`, userID); err != nil {
		return uuid.Nil, fmt.Errorf("clearing chat turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing reset: %w", err)
	}

	s.logger.Debug("reset chat", "user_id", userID, "thread_id", threadID)
	return threadID, nil
}

// AppendTurns adds turns to the user's transcript, creating the chat
// record if needed.
func (s *Store) AppendTurns(ctx context.Context, userID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if _, err := s.Ensure(ctx, userID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("rollback after append", "error", err)
		}
	}()

	const q = `
		INSERT INTO chat_turns (id, user_id, role, content, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, t := range turns {
		if _, err := tx.Exec(ctx, q, t.ID, userID, t.Role, t.Content, t.Mode, t.CreatedAt); err != nil {
			return fmt.Errorf("inserting chat turn %s: %w", t.ID, err)
		}
	}

	const touchQ = `UPDATE chats SET updated_at = $2 WHERE user_id = $1`
	if _, err := tx.Exec(ctx, touchQ, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turns: %w", err)
	}

	return nil
}

// SaveGreeting records the composed greeting as the user's last
// greeting and appends it to the transcript as a bot turn. A greeting
// that is already the latest bot turn is not appended again, so a
// redelivered save is a no-op.
func (s *Store) SaveGreeting(ctx context.Context, userID, greeting string) error {
	rec, err := s.Ensure(ctx, userID)
	if err != nil {
		return err
	}
	if greetingRecorded(rec, greeting) {
		s.logger.Debug("greeting already recorded", "user_id", userID)
		return nil
	}

	const q = `UPDATE chats SET last_greeting = $2, updated_at = $3 WHERE user_id = $1`
	if _, err := s.pool.Exec(ctx, q, userID, greeting, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving greeting: %w", err)
	}

	if err := s.AppendTurns(ctx, userID, NewBotTurn(greeting, "")); err != nil {
		return fmt.Errorf("appending greeting turn: %w", err)
	}

	s.logger.Debug("saved greeting", "user_id", userID)
	return nil
}

// greetingRecorded reports whether the transcript already ends with
// this greeting as a bot turn.
func greetingRecorded(rec *Record, greeting string) bool {
	n := len(rec.Turns)
	if n == 0 {
		return false
	}
	last := rec.Turns[n-1]
	return last.Role == RoleBot && last.Content == greeting
}
