package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"chirp/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chirp.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[feed]
size = 20
strategy = "merge"

[server]
port = 8080
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Feed.Size)
	assert.Equal(t, "merge", cfg.Feed.Strategy)
	assert.Equal(t, 8080, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Feed.HistoryLimit)
	assert.Equal(t, config.Default().Firehose.Hosts, cfg.Firehose.Hosts)

	opts, err := cfg.FeedOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestLoadConfigShippedFile(t *testing.T) {
	cfg, err := config.LoadConfig("chirp.toml")
	require.NoError(t, err)
	assert.Equal(t, "merge", cfg.Feed.Strategy)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid toml", content: "[feed\nsize = 1"},
		{name: "feed size too large", content: "[feed]\nsize = 1000"},
		{name: "unknown strategy", content: "[feed]\nstrategy = \"scan\""},
		{name: "history limit below page size", content: "[feed]\nhistory_limit = 5"},
		{name: "bad port", content: "[server]\nport = 70000"},
		{name: "no workers", content: "[firehose]\nworkers = 0"},
		{name: "negative queue size", content: "[firehose]\nqueue_size = -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
