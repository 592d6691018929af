// Package event implements calendar events: validation, overlap
// detection, and PostgreSQL persistence.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no event matches the query.
	ErrNotFound = errors.New("event not found")

	// ErrValidation wraps all event field validation failures.
	ErrValidation = errors.New("invalid event")

	// ErrConflict is returned when an event overlaps an existing one
	// for the same user.
	ErrConflict = errors.New("event overlaps an existing event")
)

// Event is a scheduled calendar entry owned by a user.
type Event struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks field constraints. Title must be 3-100 characters,
// description 10-500 characters, and the start must precede the end.
func (e *Event) Validate() error {
	title := strings.TrimSpace(e.Title)
	if len(title) < 3 || len(title) > 100 {
		return fmt.Errorf("%w: title must be 3-100 characters, got %d", ErrValidation, len(title))
	}

	if n := len(e.Description); n < 10 || n > 500 {
		return fmt.Errorf("%w: description must be 10-500 characters, got %d", ErrValidation, n)
	}

	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end times are required", ErrValidation)
	}
	if !e.StartTime.Before(e.EndTime) {
		return fmt.Errorf("%w: start time must be before end time", ErrValidation)
	}

	return nil
}

// Overlaps reports whether the interval [start, end) collides with
// [otherStart, otherEnd). An event starting exactly when another ends
// is not an overlap, so back-to-back events are allowed.
//
// Three clauses: the new event starts inside the other, ends inside
// the other, or fully contains it.
func Overlaps(start, end, otherStart, otherEnd time.Time) bool {
	startsInside := !start.Before(otherStart) && start.Before(otherEnd)
	endsInside := end.After(otherStart) && !end.After(otherEnd)
	contains := start.Before(otherStart) && end.After(otherEnd)
	return startsInside || endsInside || contains
}
