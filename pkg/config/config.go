// Package config loads client settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultServerURL     = "http://127.0.0.1:3721"
	DefaultStaleAfter    = 40 * time.Second
	DefaultCheckInterval = 25 * time.Second
	DefaultPageSize      = 100
)

// Config holds the client configuration
type Config struct {
	ServerURL     string        // base URL of the orchestrator backend
	Token         string        // bearer token, empty disables auth
	LogLevel      slog.Level    // minimum level for client logs
	StaleAfter    time.Duration // liveness threshold for live streams
	CheckInterval time.Duration // liveness check period
	PageSize      int           // history page size
}

// ParseCfg builds a Config from DECKSTREAM_* environment variables,
// falling back to defaults for anything unset.
func ParseCfg() (*Config, error) {
	cfg := &Config{
		ServerURL:     envOrDefault("DECKSTREAM_URL", DefaultServerURL),
		Token:         os.Getenv("DECKSTREAM_TOKEN"),
		LogLevel:      ParseLogLevel(os.Getenv("DECKSTREAM_LOG_LEVEL")),
		StaleAfter:    DefaultStaleAfter,
		CheckInterval: DefaultCheckInterval,
		PageSize:      DefaultPageSize,
	}

	if v := os.Getenv("DECKSTREAM_STALE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse DECKSTREAM_STALE_AFTER: %w", err)
		}
		cfg.StaleAfter = d
	}
	if v := os.Getenv("DECKSTREAM_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("parse DECKSTREAM_PAGE_SIZE: %q is not a positive integer", v)
		}
		cfg.PageSize = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("server URL must be http or https, got %q", u.Scheme)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale threshold must be positive, got %v", c.StaleAfter)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
