package config

import (
	"fmt"
	"os"

	"chirp/feeds"

	"github.com/BurntSushi/toml"
)

// TomlFeed holds the feed store settings
type TomlFeed struct {
	Size         int    `toml:"size"`
	Strategy     string `toml:"strategy"`
	HistoryLimit int    `toml:"history_limit"`
}

// TomlServer holds HTTP server settings
type TomlServer struct {
	Port int `toml:"port"`
}

// TomlFirehose holds Jetstream connection settings
type TomlFirehose struct {
	Hosts     []string `toml:"hosts"`
	Compress  bool     `toml:"compress"`
	UserAgent string   `toml:"user_agent"`
	Workers   int      `toml:"workers"`
	QueueSize int      `toml:"queue_size"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Feed     TomlFeed     `toml:"feed"`
	Server   TomlServer   `toml:"server"`
	Firehose TomlFirehose `toml:"firehose"`
}

// Default returns the configuration used when no file is given
func Default() *TomlConfig {
	return &TomlConfig{
		Feed: TomlFeed{
			Size:         10,
			Strategy:     "heap",
			HistoryLimit: 1000,
		},
		Server: TomlServer{
			Port: 3000,
		},
		Firehose: TomlFirehose{
			Hosts: []string{
				"wss://jetstream1.us-east.bsky.network",
				"wss://jetstream2.us-east.bsky.network",
				"wss://jetstream1.us-west.bsky.network",
				"wss://jetstream2.us-west.bsky.network",
			},
			Compress:  true,
			UserAgent: "chirp",
			Workers:   4,
			QueueSize: 1000,
		},
	}
}

// LoadConfig reads the TOML file at path on top of Default. An empty path
// returns the defaults.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// Validate rejects settings the feed store cannot honour
func (c *TomlConfig) Validate() error {
	if c.Feed.Size < 1 || c.Feed.Size > 100 {
		return fmt.Errorf("feed.size must be between 1 and 100, got %d", c.Feed.Size)
	}
	// A history shorter than the largest page would drop posts from feeds.
	if c.Feed.HistoryLimit != 0 && c.Feed.HistoryLimit < 100 {
		return fmt.Errorf("feed.history_limit must be 0 or at least 100, got %d", c.Feed.HistoryLimit)
	}
	if _, err := feeds.ParseStrategy(c.Feed.Strategy); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Firehose.Workers < 1 {
		return fmt.Errorf("firehose.workers must be positive, got %d", c.Firehose.Workers)
	}
	if c.Firehose.QueueSize < 0 {
		return fmt.Errorf("firehose.queue_size must not be negative, got %d", c.Firehose.QueueSize)
	}
	return nil
}

// FeedOptions translates the [feed] section into store options
func (c *TomlConfig) FeedOptions() ([]feeds.Option, error) {
	strategy, err := feeds.ParseStrategy(c.Feed.Strategy)
	if err != nil {
		return nil, err
	}
	return []feeds.Option{
		feeds.WithFeedSize(c.Feed.Size),
		feeds.WithStrategy(strategy),
		feeds.WithHistoryLimit(c.Feed.HistoryLimit),
	}, nil
}
