// Package task implements task records: validation, normalization, and
// PostgreSQL persistence.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DefaultDescription is applied when a task is created through the
// assistant without an explicit description.
const DefaultDescription = "Task created via AI assistant"

var (
	// ErrNotFound is returned when no task matches the query.
	ErrNotFound = errors.New("task not found")

	// ErrValidation wraps all task field validation failures.
	ErrValidation = errors.New("invalid task")

	// ErrDuplicateTitle is returned when the user already has a task
	// with the same title.
	ErrDuplicateTitle = errors.New("task with this title already exists")
)

// Task is a single to-do item owned by a user.
type Task struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	// DueDate is optional; nil means the task has no deadline.
	DueDate   *time.Time `json:"dueDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NormalizePriority lowercases the given priority and falls back to
// medium when it is empty or not one of low, medium, high.
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Validate checks field constraints. Title must be 3-100 characters;
// description is optional but when present must be 5-500 characters.
func (t *Task) Validate() error {
	title := strings.TrimSpace(t.Title)
	if len(title) < 3 || len(title) > 100 {
		return fmt.Errorf("%w: title must be 3-100 characters, got %d", ErrValidation, len(title))
	}

	if t.Description != "" {
		if n := len(t.Description); n < 5 || n > 500 {
			return fmt.Errorf("%w: description must be 5-500 characters, got %d", ErrValidation, n)
		}
	}

	switch t.Status {
	case StatusOpen, StatusInProgress, StatusClosed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}

	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	}

	return nil
}
