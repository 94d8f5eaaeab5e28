package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	SetupWriter(&buf, slog.LevelInfo, false)

	slog.Debug("hidden")
	slog.With(slog.String("session", "abc")).Info("Started playback session")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Started playback session", line["msg"])
	assert.Equal(t, "abc", line["session"])
}

func TestSetupWriter_Text(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	logger := SetupWriter(&buf, slog.LevelDebug, true)

	logger.Debug("visible", slog.Int("count", 2))
	assert.True(t, strings.Contains(buf.String(), "count=2"), buf.String())
}
