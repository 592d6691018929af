package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/planora/planora/internal/agent"
	"github.com/planora/planora/internal/assistant"
	"github.com/planora/planora/internal/bus"
	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/config"
	"github.com/planora/planora/internal/convo"
	"github.com/planora/planora/internal/database"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/intent"
	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/task"
)

const askSystem = "You are a helpful personal assistant in an ongoing conversation. " +
	"Use the prior messages in this thread to answer follow-up questions. Be concise."

const agentSystem = "You are a personal assistant that manages the user's tasks and calendar. " +
	"When the user asks to create a task or schedule an event, call the matching tool. " +
	"Confirm what you did in one or two sentences."

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, dbCleanup, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	gw, err := gateway.New(g, gateway.Config{
		ModelName:     cfg.QualifiedModelName(),
		Timeout:       cfg.GatewayTimeout(),
		RatePerSecond: 5,
		RateBurst:     10,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}

	a.Tasks = task.NewStore(pool, logger)
	a.Events = event.NewStore(pool, logger)
	a.Chats = chatlog.NewStore(pool, logger)

	b := bus.New(bus.Config{
		Workers:     cfg.BusWorkers,
		QueueSize:   cfg.BusQueueSize,
		MaxAttempts: cfg.BusMaxAttempts,
	}, logger)

	consumers := intent.NewConsumers(a.Tasks, a.Events, a.Chats, logger)
	if err := consumers.Register(b); err != nil {
		return nil, fmt.Errorf("registering intent consumers: %w", err)
	}

	b.Start(ctx)
	a.Bus = b
	a.busCleanup = b.Close

	engine := convo.NewEngine(gw, convo.NewPostgresCheckpointer(pool, logger), askSystem, logger)

	tools := agent.NewTools(b, logger)
	executor := agent.NewExecutor(gw, tools.Register(g), agent.NewMemorySessionStore(), agent.Config{
		System:   agentSystem,
		MaxTurns: cfg.MaxTurns,
	}, logger)

	a.Assistant = assistant.New(a.Chats, gw, engine, executor, a.Tasks, a.Events, b, logger)

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization.
// Tracing is disabled when no endpoint is configured.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is called
	// exactly once during startup in Setup, before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		slog.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("OTLP tracing enabled",
		"endpoint", cfg.OTLPEndpoint,
		"service", cfg.ServiceName,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideDBPool creates a PostgreSQL connection pool after running
// migrations.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	pool, err := database.NewPool(ctx, cfg.PostgresURL(), cfg.PostgresConnectionString(), logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}
