package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/backend/espeak"
	"github.com/ekisa-team/eduvox/internal/backend/llama"
	"github.com/ekisa-team/eduvox/internal/backend/openai"
	"github.com/ekisa-team/eduvox/internal/backend/piper"
	"github.com/ekisa-team/eduvox/internal/config"
)

// generationTimeout bounds a single llama.cpp CLI run or completion request.
const generationTimeout = 2 * time.Minute

var defaultBinaries = map[backend.BackendProvider]string{
	backend.BackendProviderLlamaCPP:    "llama-cli",
	backend.BackendProviderLlamaServer: "llama-server",
	backend.BackendProviderPiper:       "piper",
	backend.BackendProviderEspeakNG:    "espeak-ng",
}

func binaryFor(svc config.ServiceBackendConfig) string {
	if svc.Binary != "" {
		return svc.Binary
	}
	return defaultBinaries[backend.BackendProvider(svc.Backend)]
}

// serverParameters are the llama-server launch options read from the LLM parameters.
type serverParameters struct {
	ContextSize int `mapstructure:"n_ctx"`
	Threads     int `mapstructure:"threads"`
}

// registerBackends creates the backends the configured services run on.
func registerBackends(cfg *config.Config, device backend.Device, servers *backend.ServerManager) (*backend.Registry, error) {
	registry := backend.NewRegistry()

	llm, err := newLLMBackend(&cfg.Services.LLM, device, servers)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Services.LLM.Backend, err)
	}
	if err := registry.Register(llm); err != nil {
		return nil, err
	}

	tts, err := newTTSBackend(&cfg.Services.TTS)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Services.TTS.Backend, err)
	}
	if err := registry.Register(tts); err != nil {
		return nil, err
	}

	return registry, nil
}

func newLLMBackend(svc *config.LLMServiceConfig, device backend.Device, servers *backend.ServerManager) (backend.Backend, error) {
	switch provider := backend.BackendProvider(svc.Backend); provider {
	case backend.BackendProviderLlamaCPP:
		return llama.NewBackend(binaryFor(svc.ServiceBackendConfig), device, generationTimeout)

	case backend.BackendProviderLlamaServer:
		var params serverParameters
		if err := backend.DecodeParameters(svc.Parameters, &params); err != nil {
			return nil, err
		}

		var extra []string
		if params.ContextSize > 0 {
			extra = append(extra, "--ctx-size", strconv.Itoa(params.ContextSize))
		}
		if params.Threads > 0 {
			extra = append(extra, "--threads", strconv.Itoa(params.Threads))
		}

		return openai.NewServerBackend(openai.ServerOptions{
			Servers:   servers,
			BinPath:   binaryFor(svc.ServiceBackendConfig),
			Device:    device,
			Port:      svc.ServerPort,
			ExtraArgs: extra,
		}, openai.Config{APIKey: svc.APIKey, Timeout: generationTimeout}), nil

	case backend.BackendProviderOpenAI:
		return openai.NewBackend(openai.Config{
			BaseURL: svc.BaseURL,
			APIKey:  svc.APIKey,
			Timeout: generationTimeout,
		}), nil

	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendNotFound, provider)
	}
}

func newTTSBackend(svc *config.TTSServiceConfig) (backend.Backend, error) {
	switch provider := backend.BackendProvider(svc.Backend); provider {
	case backend.BackendProviderPiper:
		return piper.NewBackend(binaryFor(svc.ServiceBackendConfig), svc.Timeout)
	case backend.BackendProviderEspeakNG:
		return espeak.NewBackend(binaryFor(svc.ServiceBackendConfig), svc.Timeout)
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendNotFound, provider)
	}
}
