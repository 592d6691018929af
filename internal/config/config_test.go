package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a Config that passes Validate.
func validConfig() Config {
	return Config{
		Provider:              ProviderGemini,
		ModelName:             "gemini-2.5-flash",
		MaxTurns:              5,
		GatewayTimeoutSeconds: 30,
		ServerAddr:            "127.0.0.1:3500",
		BusWorkers:            2,
		BusQueueSize:          256,
		BusMaxAttempts:        5,
		PostgresHost:          "localhost",
		PostgresPort:          5432,
		PostgresUser:          "planora",
		PostgresPassword:      "secret",
		PostgresDBName:        "planora",
		PostgresSSLMode:       "disable",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: nil},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "zero max turns",
			mutate:  func(c *Config) { c.MaxTurns = 0 },
			wantErr: ErrInvalidMaxTurns,
		},
		{
			name:    "excessive max turns",
			mutate:  func(c *Config) { c.MaxTurns = 100 },
			wantErr: ErrInvalidMaxTurns,
		},
		{
			name:    "zero gateway timeout",
			mutate:  func(c *Config) { c.GatewayTimeoutSeconds = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "zero bus workers",
			mutate:  func(c *Config) { c.BusWorkers = 0 },
			wantErr: ErrInvalidBusWorkers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestQualifiedModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.QualifiedModelName(); got != tt.want {
				t.Errorf("QualifiedModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPostgresConnectionString_QuotesPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "pass word's"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, `password='pass word\'s'`) {
		t.Errorf("password not quoted correctly: %s", dsn)
	}
}

func TestPostgresURL_EncodesCredentials(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("unexpected URL scheme: %s", u)
	}
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("special characters not encoded: %s", u)
	}
}
