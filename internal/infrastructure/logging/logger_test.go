package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNewWithWriter_JSONDefaultAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Component("serial").Info("port opened", "port", "/dev/ttyUSB0")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "espnow-bridge", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
	assert.Equal(t, "serial", record["component"])
	assert.Equal(t, "/dev/ttyUSB0", record["port"])
	assert.Equal(t, "port opened", record["msg"])
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "dev", &buf)

	logger.Debug("frame decoded", "mac", "aa:bb")

	out := buf.String()
	assert.Contains(t, out, "msg=\"frame decoded\"")
	assert.Contains(t, out, "mac=aa:bb")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn"}, "dev", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	logger := New(config.LoggingConfig{Level: "info", Output: "file", File: path}, "dev")

	logger.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestLogger_WithReturnsNewLogger(t *testing.T) {
	logger := Discard()
	child := logger.With("mac", "aa")

	require.NotNil(t, child)
	assert.NotSame(t, logger, child)
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default())
}
