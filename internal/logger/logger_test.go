package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/eduvox/internal/env"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Production, WithOutput(&buf))

	log.Info("Model loaded", "model_id", "tinyllama")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Model loaded", record["msg"])
	assert.Equal(t, "tinyllama", record["model_id"])
}

func TestNew_DevelopmentIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(env.Development, WithOutput(&buf))

	log.Debug("Polling for audio file")

	assert.Contains(t, buf.String(), "Polling for audio file")
}

func TestNew_LogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "eduvox.log")
	log := New(env.Production, WithOutput(&buf), WithLogToFile(true), WithLogFile(path))

	log.With("component", "test").Warn("Synthesis timed out", "session_id", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Synthesis timed out")
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, buf.String(), "Synthesis timed out")
}

func TestNew_LogToFileRespectsLevels(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "eduvox.log")
	log := New(env.Production,
		WithOutput(&buf),
		WithLevel(slog.LevelWarn),
		WithLogToFile(true),
		WithLogFile(path),
	)

	log.Info("Request served")
	log.WithGroup("tts").Error("Engine failed", "session_id", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Request served")
	assert.NotContains(t, buf.String(), "Request served")
	assert.Contains(t, string(data), `"tts":{"session_id":"abc"}`)
	assert.Contains(t, buf.String(), `"tts":{"session_id":"abc"}`)
}
