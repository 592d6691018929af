package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/planora/planora/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs. Interfaces are
// defined by the consumer, not the provider.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists tasks in PostgreSQL.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a task store backed by db.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create validates and inserts a new task. The user must not already
// have a task with the same title (case-insensitive exact match).
func (s *Store) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Status == "" {
		t.Status = StatusOpen
	}
	t.Priority = NormalizePriority(t.Priority)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.FindByTitle(ctx, t.UserID, t.Title); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateTitle, t.Title)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	t.ID = uuid.New()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	const q = `
		INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.db.Exec(ctx, q,
		t.ID, t.UserID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}

	s.logger.Debug("created task", "id", t.ID, "user_id", t.UserID, "title", t.Title)
	return t, nil
}

// List returns the user's tasks, newest first, optionally filtered by
// status, priority, and a free-text query over title and description
// (empty strings match everything).
func (s *Store) List(ctx context.Context, userID, status, priority, query string) ([]*Task, error) {
	const q = `
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR priority = $3)
		  AND ($4 = '' OR title ILIKE '%' || $4 || '%' OR description ILIKE '%' || $4 || '%')
		ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, q, userID, status, priority, query)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	return tasks, nil
}

// FindByTitle returns the user's task whose title matches exactly,
// ignoring case. Returns ErrNotFound when no task matches.
func (s *Store) FindByTitle(ctx context.Context, userID, title string) (*Task, error) {
	const q = `
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND LOWER(title) = LOWER($2)
		LIMIT 1`
	t, err := scanTask(s.db.QueryRow(ctx, q, userID, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding task by title: %w", err)
	}

	return t, nil
}

// RandomInProgress returns one of the user's in-progress tasks chosen
// at random, or ErrNotFound when the user has none.
func (s *Store) RandomInProgress(ctx context.Context, userID string) (*Task, error) {
	const q = `
		SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND status = $2
		ORDER BY random()
		LIMIT 1`
	t, err := scanTask(s.db.QueryRow(ctx, q, userID, StatusInProgress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding random in-progress task: %w", err)
	}

	return t, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.DueDate, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
