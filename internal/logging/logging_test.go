package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/config"
)

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "sync_id", "sync-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "sync_id=sync-1")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("phase changed", "phase", "scanning")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "phase changed", rec["msg"])
	assert.Equal(t, "scanning", rec["phase"])
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "treesync.log")
	logger, closer, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, os.Stderr)
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, _, err = New(config.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
