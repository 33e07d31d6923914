package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/ekisa-team/eduvox/internal/envvar"
)

const (
	defaultHTTPPort        = 5000
	defaultGRPCPort        = 5001
	defaultHost            = "0.0.0.0"
	defaultAudioDir        = "audio"
	defaultStaticDir       = "static"
	defaultMaxPromptTokens = 256
	defaultMaxNewTokens    = 64
	defaultTemperature     = 0.7
	defaultTopP            = 0.9
	defaultLlamaServerPort = 8089
	defaultTTSTimeout      = 10 * time.Second
	defaultTTSPollInterval = 100 * time.Millisecond
)

// DefaultConfigPath returns the default path for the Edu-Vox config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "eduvox", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "eduvox")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "eduvox")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "eduvox")
		}
		return filepath.Join(home, ".config", "eduvox")
	}
}

// DefaultModelsPath returns the default path for the Edu-Vox models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "eduvox", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "eduvox", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "eduvox", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "eduvox", "models")
		}
		return filepath.Join(home, ".cache", "eduvox", "models")
	}
}

// DefaultHTTPPort returns the HTTP port from EDUVOX_SERVER_HTTP_PORT or the built-in default.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.EduvoxServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port from EDUVOX_SERVER_GRPC_PORT or the built-in default.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.EduvoxServerGRPCPort, defaultGRPCPort)
}

func portFromEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}

	return fallback
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort()
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort()
	}
	if c.Server.AudioDir == "" {
		c.Server.AudioDir = defaultAudioDir
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = defaultStaticDir
	}

	llm := &c.Services.LLM
	if llm.MaxPromptTokens == 0 {
		llm.MaxPromptTokens = defaultMaxPromptTokens
	}
	if llm.MaxNewTokens == 0 {
		llm.MaxNewTokens = defaultMaxNewTokens
	}
	if llm.Temperature == 0 {
		llm.Temperature = defaultTemperature
	}
	if llm.TopP == 0 {
		llm.TopP = defaultTopP
	}
	if llm.ServerPort == 0 {
		llm.ServerPort = defaultLlamaServerPort
	}

	tts := &c.Services.TTS
	if tts.Timeout == 0 {
		tts.Timeout = defaultTTSTimeout
	}
	if tts.PollInterval == 0 {
		tts.PollInterval = defaultTTSPollInterval
	}

	if c.Models == nil {
		c.Models = map[string]ModelConfig{}
	}
}
