package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/testutil"
)

func newTestGateway(t *testing.T, mock *testutil.MockLLM, cfg Config) *Gateway {
	t.Helper()

	g := genkit.Init(context.Background())
	mock.RegisterModel(g)

	if cfg.ModelName == "" {
		cfg.ModelName = testutil.MockModelName
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}
	}

	gw, err := New(g, cfg, log.NewNop())
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return gw
}

func TestComplete(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("weather", "It is sunny.")
	gw := newTestGateway(t, mock, Config{})

	got, err := gw.Complete(context.Background(), "You are helpful.",
		[]*ai.Message{ai.NewUserMessage(ai.NewTextPart("what is the weather"))})
	if err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}
	if got != "It is sunny." {
		t.Errorf("Complete() = %q, want %q", got, "It is sunny.")
	}
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("recovered")
	mock.FailNext(2, errors.New("503 service unavailable"))
	gw := newTestGateway(t, mock, Config{})

	resp, err := gw.Generate(context.Background(),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart("hello"))))
	if err != nil {
		t.Fatalf("Generate() after transient failures: %v", err)
	}
	if got := resp.Text(); got != "recovered" {
		t.Errorf("Generate() = %q, want %q", got, "recovered")
	}
}

func TestGenerate_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailNext(-1, errors.New("invalid api key"))
	gw := newTestGateway(t, mock, Config{})

	_, err := gw.Generate(context.Background(),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart("hello"))))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Generate() = %v, want ErrUpstream", err)
	}

	// A non-retryable error must not be retried.
	if got := len(mock.Calls()); got != 0 {
		t.Errorf("recorded calls = %d, want 0 (failures are not recorded)", got)
	}
}

func TestGenerate_ExhaustedRetriesWrapUpstream(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailNext(-1, errors.New("429 rate limit"))
	gw := newTestGateway(t, mock, Config{})

	_, err := gw.Generate(context.Background(),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart("hello"))))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Generate() = %v, want ErrUpstream", err)
	}
}

func TestGenerate_BreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailNext(-1, errors.New("invalid request"))
	gw := newTestGateway(t, mock, Config{
		Breaker: BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
	})

	ctx := context.Background()
	msgs := ai.WithMessages(ai.NewUserMessage(ai.NewTextPart("hello")))

	for range 2 {
		if _, err := gw.Generate(ctx, msgs); err == nil {
			t.Fatal("Generate() = nil, want error")
		}
	}

	if got := gw.BreakerState(); got != BreakerOpen {
		t.Fatalf("BreakerState() = %v, want open", got)
	}

	_, err := gw.Generate(ctx, msgs)
	if !errors.Is(err, ErrUpstream) || !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Generate() with open breaker = %v, want ErrUpstream wrapping ErrBreakerOpen", err)
	}
}

func TestBreakerTransitions(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, Timeout: time.Millisecond})

	if got := b.State(); got != BreakerClosed {
		t.Fatalf("initial state = %v, want closed", got)
	}

	b.Failure()
	b.Failure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state after failures = %v, want open", got)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow() = %v, want ErrBreakerOpen", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v, want nil", err)
	}
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", got)
	}

	b.Success()
	b.Success()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state after successes = %v, want closed", got)
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("429 Too Many Requests"), want: true},
		{name: "server error", err: errors.New("received 503 from upstream"), want: true},
		{name: "network timeout", err: errors.New("dial tcp: i/o timeout"), want: true},
		{name: "auth failure", err: errors.New("invalid api key"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
