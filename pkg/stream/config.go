package stream

import (
	"fmt"
	"net/url"
	"time"

	"github.com/taskdeck/deckstream/pkg/api"
	"github.com/taskdeck/deckstream/pkg/backoff"
)

// Config tunes a stream session's transport and liveness behavior.
type Config struct {
	BaseURL          string // http(s) base URL of the backend
	Token            string // bearer token, empty disables auth
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	CheckInterval    time.Duration // liveness check period
	StaleAfter       time.Duration // silence threshold before proactive close
	Backoff          *backoff.Policy
}

// NewDefaultConfig creates a config with the default tuning for the given
// backend URL.
func NewDefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:          baseURL,
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        10 * time.Second,
		MaxMessageSize:   512 * 1024, // 512KB
		CheckInterval:    25 * time.Second,
		StaleAfter:       40 * time.Second,
		Backoff:          backoff.NewPolicy(),
	}
}

// streamURL converts the http(s) base URL into the ws(s) endpoint for one
// process's stream.
func (c *Config) streamURL(processID string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = api.StreamPath(processID)
	return u.String(), nil
}
