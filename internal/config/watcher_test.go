package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfig = "version: \"1\"\nservices:\n  llm:\n    backend: llama.cpp\n    max_new_tokens: %d\n  tts:\n    backend: piper\n"

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, fmtConfig(32), 0o644))

	var reloaded atomic.Int32
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err == nil && cfg.Services.LLM.MaxNewTokens == 96 {
			reloaded.Add(1)
		}
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 32, w.Snapshot().Services.LLM.MaxNewTokens)

	// Give the watcher goroutine time to register the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, fmtConfig(96), 0o644))

	assert.Eventually(t, func() bool { return reloaded.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 96, w.Snapshot().Services.LLM.MaxNewTokens)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestNewWatcher_InvalidInitialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0o644))

	_, err := NewWatcher(path, "", nil)
	assert.ErrorContains(t, err, "failed to load initial config")
}

func TestStatic_Snapshot(t *testing.T) {
	cfg := &Config{Version: "1"}
	assert.Same(t, cfg, Static{Config: cfg}.Snapshot())
}

func fmtConfig(maxNew int) []byte {
	return []byte(fmt.Sprintf(watcherConfig, maxNew))
}
