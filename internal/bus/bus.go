// Package bus implements an in-process event bus with at-least-once
// delivery: named envelopes are queued, consumed by a worker pool, and
// retried with exponential backoff until they succeed, exhaust their
// attempts, or the bus shuts down. Exhausted envelopes land on a
// dead-letter list for inspection.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planora/planora/internal/log"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("bus is closed")

	// ErrQueueFull is returned when the queue cannot accept another
	// envelope without blocking.
	ErrQueueFull = errors.New("bus queue is full")

	// ErrDuplicateHandler is returned when an event name already has
	// a handler.
	ErrDuplicateHandler = errors.New("handler already registered")
)

// Envelope is a queued event. Payload is the JSON-encoded event body.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Handler consumes an envelope. Returning an error requeues the
// envelope for another attempt; handlers must therefore be idempotent.
type Handler func(ctx context.Context, env Envelope) error

// DeadLetter is an envelope that exhausted its attempts, together with
// the last error it failed with.
type DeadLetter struct {
	Envelope Envelope
	Err      error
}

// Config configures the bus.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// InitialBackoff is the delay before the first redelivery; it
	// doubles on each subsequent attempt.
	InitialBackoff time.Duration
}

// Bus routes envelopes to handlers. Create with New, register handlers
// with Subscribe, then call Start.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	queue   chan Envelope
	workers int

	maxAttempts int
	backoff     time.Duration

	wg      sync.WaitGroup // workers
	retryWG sync.WaitGroup // pending redeliveries

	deadMu sync.Mutex
	dead   []DeadLetter

	logger log.Logger
}

// New creates a bus, applying defaults for zero config values.
func New(cfg Config, logger log.Logger) *Bus {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	return &Bus{
		handlers:    make(map[string]Handler),
		queue:       make(chan Envelope, cfg.QueueSize),
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.InitialBackoff,
		logger:      logger,
	}
}

// Subscribe registers the handler for an event name. Each name takes
// exactly one handler; registering twice is an error.
func (b *Bus) Subscribe(name string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, name)
	}
	b.handlers[name] = h
	return nil
}

// Start launches the worker pool. ctx is passed to handlers; cancel it
// to abort in-flight handler work during shutdown.
func (b *Bus) Start(ctx context.Context) {
	for range b.workers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for env := range b.queue {
				b.dispatch(ctx, env)
			}
		}()
	}
}

// Publish marshals v and enqueues it under the event name without
// blocking. Returns ErrQueueFull when the queue is saturated and
// ErrClosed after shutdown.
func (b *Bus) Publish(name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q payload: %w", name, err)
	}

	env := Envelope{
		ID:         uuid.New(),
		Name:       name,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.queue <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// dispatch runs the handler for one envelope and arranges redelivery
// on failure.
func (b *Bus) dispatch(ctx context.Context, env Envelope) {
	b.mu.RLock()
	h, ok := b.handlers[env.Name]
	b.mu.RUnlock()

	if !ok {
		b.deadLetter(env, fmt.Errorf("no handler for %q", env.Name))
		return
	}

	env.Attempts++
	err := h(ctx, env)
	if err == nil {
		return
	}

	if env.Attempts >= b.maxAttempts {
		b.deadLetter(env, err)
		return
	}

	delay := b.backoff << (env.Attempts - 1)
	b.logger.Warn("handler failed, scheduling redelivery",
		"event", env.Name,
		"id", env.ID,
		"attempt", env.Attempts,
		"delay", delay,
		"error", err,
	)

	// Redeliver from a separate goroutine so the worker stays free.
	b.retryWG.Add(1)
	go func() {
		defer b.retryWG.Done()

		select {
		case <-ctx.Done():
			b.deadLetter(env, fmt.Errorf("canceled before redelivery: %w", err))
			return
		case <-time.After(delay):
		}

		if !b.requeue(env) {
			b.deadLetter(env, fmt.Errorf("requeue failed: %w", err))
		}
	}()
}

// requeue re-enqueues a failed envelope. Returns false when the bus is
// closed or the queue is full.
func (b *Bus) requeue(env Envelope) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	select {
	case b.queue <- env:
		return true
	default:
		return false
	}
}

func (b *Bus) deadLetter(env Envelope, err error) {
	b.logger.Error("envelope dead-lettered",
		"event", env.Name,
		"id", env.ID,
		"attempts", env.Attempts,
		"error", err,
	)

	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	b.dead = append(b.dead, DeadLetter{Envelope: env, Err: err})
}

// DeadLetters returns a copy of the dead-letter list.
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	cp := make([]DeadLetter, len(b.dead))
	copy(cp, b.dead)
	return cp
}

// Close stops accepting publishes, drains the queue, and waits for
// pending redeliveries before returning. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.queue)
	b.wg.Wait()

	// Redeliveries are only scheduled from worker goroutines, so once
	// the workers have exited the retry counter cannot grow and this
	// wait observes every pending redelivery. Each one dead-letters
	// when it sees the closed flag.
	b.retryWG.Wait()
}
