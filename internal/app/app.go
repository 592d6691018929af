// Package app wires the application together: configuration, database,
// Genkit, the model gateway, the intent bus, and the assistant.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/planora/internal/assistant"
	"github.com/planora/planora/internal/bus"
	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/config"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/task"
)

// App is the application container. Setup builds it; Close releases
// its resources in reverse initialization order.
type App struct {
	Config *config.Config

	Genkit *genkit.Genkit
	DBPool *pgxpool.Pool

	Tasks     *task.Store
	Events    *event.Store
	Chats     *chatlog.Store
	Bus       *bus.Bus
	Assistant *assistant.Assistant

	otelCleanup func()
	busCleanup  func()
	dbCleanup   func()
}

// Close gracefully shuts down all resources. The bus is drained before
// the database pool closes so in-flight intents can still persist.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.busCleanup != nil {
		a.busCleanup()
		slog.Info("intent bus drained")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
