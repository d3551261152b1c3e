package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/taskdeck/deckstream/pkg/config"
	"github.com/taskdeck/deckstream/pkg/history"
	"github.com/taskdeck/deckstream/pkg/logcache"
	"github.com/taskdeck/deckstream/pkg/stream"
)

type app struct {
	cfg     *config.Config
	history *history.Client
	stream  *stream.Config
	cache   *logcache.Cache
}

func wireApp() (*app, error) {
	cfg, err := loadConfig(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	hist, err := history.NewClient(cfg.ServerURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("wire history client: %w", err)
	}

	streamCfg := stream.NewDefaultConfig(cfg.ServerURL)
	streamCfg.Token = cfg.Token
	streamCfg.StaleAfter = cfg.StaleAfter
	streamCfg.CheckInterval = cfg.CheckInterval

	return &app{
		cfg:     cfg,
		history: hist,
		stream:  streamCfg,
		cache:   logcache.New(logcache.DefaultMaxEntries, logcache.DefaultTTL),
	}, nil
}

// loadConfig layers, lowest to highest: built-in defaults, the optional
// ~/.deckstream/config.yaml, and DECKSTREAM_* environment variables.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	v.SetDefault("server_url", config.DefaultServerURL)
	v.SetDefault("token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("stale_after", config.DefaultStaleAfter)
	v.SetDefault("page_size", config.DefaultPageSize)

	if homeDir, err := os.UserHomeDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir, ".deckstream"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DECKSTREAM")
	v.AutomaticEnv()
	// DECKSTREAM_URL is the documented name for the server address.
	_ = v.BindEnv("server_url", "DECKSTREAM_URL")

	cfg := &config.Config{
		ServerURL:     v.GetString("server_url"),
		Token:         v.GetString("token"),
		LogLevel:      config.ParseLogLevel(v.GetString("log_level")),
		StaleAfter:    v.GetDuration("stale_after"),
		CheckInterval: config.DefaultCheckInterval,
		PageSize:      v.GetInt("page_size"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
