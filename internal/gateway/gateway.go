// Package gateway is the single surface through which the rest of the
// system talks to the language model. It wraps Genkit generation with
// a per-call timeout, rate limiting, retry with exponential backoff,
// and a circuit breaker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/planora/planora/internal/log"
)

// ErrUpstream wraps all model call failures, including timeouts and
// an open circuit breaker. Callers map it to a single upstream-failure
// response without inspecting provider details.
var ErrUpstream = errors.New("model upstream failure")

// Config configures the gateway.
type Config struct {
	ModelName string        // provider-qualified model name
	Timeout   time.Duration // per-call deadline covering all retries
	Retry     RetryConfig
	Breaker   BreakerConfig
	// RatePerSecond limits outbound model calls; zero disables limiting.
	RatePerSecond float64
	RateBurst     int
}

func (c *Config) validate() error {
	if c.ModelName == "" {
		return errors.New("gateway: model name is required")
	}
	if c.Timeout <= 0 {
		return errors.New("gateway: timeout must be positive")
	}
	return nil
}

// Gateway executes model calls. It is safe for concurrent use.
type Gateway struct {
	g         *genkit.Genkit
	modelName string
	timeout   time.Duration
	retry     RetryConfig
	breaker   *Breaker
	limiter   *rate.Limiter
	logger    log.Logger
}

// New creates a gateway over an initialized Genkit instance.
func New(g *genkit.Genkit, cfg Config, logger log.Logger) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	gw := &Gateway{
		g:         g,
		modelName: cfg.ModelName,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		breaker:   NewBreaker(cfg.Breaker),
		logger:    logger,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		gw.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return gw, nil
}

// Complete sends the conversation to the model and returns its text
// reply. system may be empty.
func (gw *Gateway) Complete(ctx context.Context, system string, msgs []*ai.Message) (string, error) {
	opts := []ai.GenerateOption{ai.WithMessages(msgs...)}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}

	resp, err := gw.Generate(ctx, opts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Generate executes a model call with the gateway's model, timeout,
// rate limit, retry, and circuit breaker applied. Extra options (such
// as tools or max turns) are passed through to Genkit.
func (gw *Gateway) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	if err := gw.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	ctx, cancel := context.WithTimeout(ctx, gw.timeout)
	defer cancel()

	opts = append([]ai.GenerateOption{ai.WithModelName(gw.modelName)}, opts...)

	resp, err := gw.generateWithRetry(ctx, opts)
	if err != nil {
		gw.breaker.Failure()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: call timed out after %s: %w", ErrUpstream, gw.timeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	gw.breaker.Success()
	return resp, nil
}

// generateWithRetry executes the call with exponential backoff. Each
// attempt is rate limited individually.
func (gw *Gateway) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := gw.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= gw.retry.MaxRetries; attempt++ {
		if gw.limiter != nil {
			if err := gw.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, gw.g, opts...)
		if err == nil {
			gw.logger.Debug("model call succeeded",
				"model", gw.modelName,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == gw.retry.MaxRetries {
			break
		}

		gw.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, gw.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		gw.retry.MaxRetries, time.Since(start), lastErr)
}

// BreakerState exposes the circuit state for health reporting.
func (gw *Gateway) BreakerState() BreakerState {
	return gw.breaker.State()
}
