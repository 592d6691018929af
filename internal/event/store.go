package event

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

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists events in PostgreSQL.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates an event store backed by db.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create validates and inserts a new event after checking that it does
// not overlap any of the user's existing events.
func (s *Store) Create(ctx context.Context, e *Event) (*Event, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if conflict, err := s.FindConflict(ctx, e.UserID, e.StartTime, e.EndTime); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("%w: %q (%s - %s)", ErrConflict,
			conflict.Title, conflict.StartTime.Format(time.RFC3339), conflict.EndTime.Format(time.RFC3339))
	}

	e.ID = uuid.New()
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	const q = `
		INSERT INTO events (id, user_id, title, description, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.db.Exec(ctx, q,
		e.ID, e.UserID, e.Title, e.Description, e.StartTime, e.EndTime, e.CreatedAt, e.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("created event", "id", e.ID, "user_id", e.UserID, "title", e.Title)
	return e, nil
}

// List returns the user's events ordered by start time ascending.
func (s *Store) List(ctx context.Context, userID string) ([]*Event, error) {
	const q = `
		SELECT id, user_id, title, description, start_time, end_time, created_at, updated_at
		FROM events
		WHERE user_id = $1
		ORDER BY start_time ASC`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// FindConflict returns the first of the user's events that overlaps
// the [start, end) interval, or ErrNotFound when none does. The SQL
// mirrors Overlaps: the new interval starts inside an existing event,
// ends inside one, or fully contains one.
func (s *Store) FindConflict(ctx context.Context, userID string, start, end time.Time) (*Event, error) {
	const q = `
		SELECT id, user_id, title, description, start_time, end_time, created_at, updated_at
		FROM events
		WHERE user_id = $1
		  AND (
			($2 >= start_time AND $2 < end_time)
			OR ($3 > start_time AND $3 <= end_time)
			OR ($2 < start_time AND $3 > end_time)
		  )
		ORDER BY start_time ASC
		LIMIT 1`
	e, err := scanEvent(s.db.QueryRow(ctx, q, userID, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checking event conflict: %w", err)
	}

	return e, nil
}

// FindEndedWithin returns the user's most recently ended event whose
// end time falls inside the last d before now, or ErrNotFound.
func (s *Store) FindEndedWithin(ctx context.Context, userID string, now time.Time, d time.Duration) (*Event, error) {
	const q = `
		SELECT id, user_id, title, description, start_time, end_time, created_at, updated_at
		FROM events
		WHERE user_id = $1 AND end_time <= $2 AND end_time >= $3
		ORDER BY end_time DESC
		LIMIT 1`
	e, err := scanEvent(s.db.QueryRow(ctx, q, userID, now, now.Add(-d)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding recently ended event: %w", err)
	}

	return e, nil
}

// FindStartingWithin returns the user's next event starting inside the
// coming d after now, or ErrNotFound.
func (s *Store) FindStartingWithin(ctx context.Context, userID string, now time.Time, d time.Duration) (*Event, error) {
	const q = `
		SELECT id, user_id, title, description, start_time, end_time, created_at, updated_at
		FROM events
		WHERE user_id = $1 AND start_time >= $2 AND start_time <= $3
		ORDER BY start_time ASC
		LIMIT 1`
	e, err := scanEvent(s.db.QueryRow(ctx, q, userID, now, now.Add(d)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding upcoming event: %w", err)
	}

	return e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	if err := row.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description,
		&e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
