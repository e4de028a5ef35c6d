/*
Package configs is responsible for loading and parsing the application's
configuration settings.

Settings come from environment variables (optionally seeded from a .env file in
development) and cover both binaries: the reference server (port, allowed origins)
and the terminal client (server URL, typing indicator lifetime).
*/
package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig contains all configuration parameters required to run either binary.
type AppConfig struct {
	// Environment selects development or production behavior (logging format,
	// CORS defaults). Defaults to development.
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Port is the reference server's listen port.
	Port int `envconfig:"PORT" default:"8080"`

	// ServerURL is the websocket endpoint the terminal client dials.
	ServerURL string `envconfig:"SERVER_URL" default:"ws://localhost:8080/ws"`

	// AllowedOrigins is the comma-separated CORS/websocket origin allowlist.
	// Empty means same-origin only outside development.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// TypingTTL is how long a typing indicator stays visible without renewal.
	TypingTTL time.Duration `envconfig:"TYPING_TTL" default:"2s"`
}

// IsDevelopment reports whether the application runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads the application configuration from the environment.
// A .env file is honored when present but is never required.
func LoadConfig() (*AppConfig, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	if !strings.HasPrefix(cfg.ServerURL, "ws://") && !strings.HasPrefix(cfg.ServerURL, "wss://") {
		return nil, fmt.Errorf("SERVER_URL must be a ws:// or wss:// endpoint, got %q", cfg.ServerURL)
	}

	if cfg.TypingTTL <= 0 {
		return nil, fmt.Errorf("TYPING_TTL must be positive, got %s", cfg.TypingTTL)
	}

	trimmed := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if o := strings.TrimSpace(origin); o != "" {
			trimmed = append(trimmed, o)
		}
	}
	cfg.AllowedOrigins = trimmed

	return cfg, nil
}
