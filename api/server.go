// Package api provides the HTTP REST API.
//
// Endpoints:
//
//	POST /api/chat                  → chat in llm, ask, or agent mode
//	GET  /api/chat/initial-message  → compose the opening greeting
//	GET  /api/chat/history          → stored transcript
//	POST /api/tasks                 → create task
//	GET  /api/tasks                 → list tasks
//	POST /api/events                → create event
//	GET  /api/events                → list events
//	GET  /health                    → liveness probe
//	GET  /ready                     → readiness probe
//
// All /api routes require the X-User-ID header.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, logging, user auth)
//   - health.go: health check endpoints
//   - chat.go: chat and greeting endpoints
//   - tasks.go: task endpoints
//   - events.go: event endpoints
//   - response.go: JSON response helpers and error mapping
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/planora/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the REST API.
type Server struct {
	mux *http.ServeMux

	health *HealthHandler
	chat   *ChatHandler
	tasks  *TaskHandler
	events *EventHandler
}

// NewServer creates a server with all routes registered.
func NewServer(
	assistant AssistantService,
	chats ChatReader,
	tasks TaskService,
	events EventService,
	pool *pgxpool.Pool,
	logger log.Logger,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		health: NewHealthHandler(pool, logger),
		chat:   NewChatHandler(assistant, chats, logger),
		tasks:  NewTaskHandler(tasks, logger),
		events: NewEventHandler(events, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.tasks.RegisterRoutes(mux)
	s.events.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → user auth → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, loggingMiddleware, userAuthMiddleware)
}

// Run starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
