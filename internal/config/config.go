// Package config handles Feedline configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for Feedline.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Feed settings for the synchronization engine
	Feed FeedConfig `yaml:"feed" mapstructure:"feed"`
}

// GlobalConfig contains global Feedline settings.
type GlobalConfig struct {
	// DataDir is where Feedline stores its data (default: ~/.local/share/feedline).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// Viewer is the user id feeds are opened as.
	Viewer string `yaml:"viewer" mapstructure:"viewer"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// FeedConfig contains tunables for the feed synchronization engine.
type FeedConfig struct {
	// PageSize is how many items each pagination fetch requests.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// FetchCooldown is the minimum delay between consecutive pagination
	// fetches, damping jittery scroll triggers.
	FetchCooldown time.Duration `yaml:"fetch_cooldown" mapstructure:"fetch_cooldown"`

	// ReadFlushDebounce is how long the read-receipt batcher waits after
	// the last visibility signal before flushing.
	ReadFlushDebounce time.Duration `yaml:"read_flush_debounce" mapstructure:"read_flush_debounce"`

	// JumpContextRadius is how many items to load on each side of a
	// context-jump target.
	JumpContextRadius int `yaml:"jump_context_radius" mapstructure:"jump_context_radius"`

	// AnchorJitterPx is the scroll delta below which anchor restoration
	// is skipped to avoid visible micro-jumps.
	AnchorJitterPx int `yaml:"anchor_jitter_px" mapstructure:"anchor_jitter_px"`

	// EventBuffer is the per-subscription event channel capacity.
	EventBuffer int `yaml:"event_buffer" mapstructure:"event_buffer"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Global: GlobalConfig{
			DataDir: dataDir,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "feedline.db"),
			BusyTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			PageSize:          50,
			FetchCooldown:     500 * time.Millisecond,
			ReadFlushDebounce: 200 * time.Millisecond,
			JumpContextRadius: 5,
			AnchorJitterPx:    2,
			EventBuffer:       256,
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "feedline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedline"
	}
	return filepath.Join(home, ".local", "share", "feedline")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive, got %d", c.Feed.PageSize)
	}
	if c.Feed.JumpContextRadius < 0 {
		return fmt.Errorf("feed.jump_context_radius must not be negative, got %d", c.Feed.JumpContextRadius)
	}
	if c.Feed.FetchCooldown < 0 {
		return fmt.Errorf("feed.fetch_cooldown must not be negative, got %s", c.Feed.FetchCooldown)
	}
	if c.Feed.ReadFlushDebounce < 0 {
		return fmt.Errorf("feed.read_flush_debounce must not be negative, got %s", c.Feed.ReadFlushDebounce)
	}
	if c.Feed.EventBuffer <= 0 {
		return fmt.Errorf("feed.event_buffer must be positive, got %d", c.Feed.EventBuffer)
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}
	return nil
}
