package openai

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ekisa-team/eduvox/internal/backend"
)

const serverName = "llama-server"

// ServerOptions configures a managed llama-server.
type ServerOptions struct {
	Servers   *backend.ServerManager
	BinPath   string
	Device    backend.Device
	ExtraArgs []string
	Port      int
}

// ServerBackend runs a local llama-server and talks to it through its
// OpenAI-compatible API.
type ServerBackend struct {
	*Backend

	opts  ServerOptions
	model string
	mu    sync.Mutex
}

// NewServerBackend creates a backend for a llama-server managed by opts.Servers.
func NewServerBackend(opts ServerOptions, cfg Config) *ServerBackend {
	cfg.BaseURL = backend.BaseURL(opts.Port) + "/v1"

	return &ServerBackend{
		Backend: newBackend(backend.BackendProviderLlamaServer, cfg),
		opts:    opts,
	}
}

// ResolveModelPath locates the .gguf file inside basePath.
func (b *ServerBackend) ResolveModelPath(basePath string) (string, error) {
	return backend.FindModelFile(basePath, ".gguf")
}

// Load starts llama-server with modelPath, restarting it when a different
// model was loaded before.
func (b *ServerBackend) Load(_ context.Context, modelPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model == modelPath && b.opts.Servers.Running(serverName, b.opts.Port) {
		return nil
	}

	if b.opts.Servers.Running(serverName, b.opts.Port) {
		if err := b.opts.Servers.StopServer(serverName, b.opts.Port); err != nil {
			return err
		}
	}

	err := b.opts.Servers.StartServer(backend.ServerConfig{
		Name:       serverName,
		BinPath:    b.opts.BinPath,
		Args:       b.serverArgs(modelPath),
		Port:       b.opts.Port,
		HealthPath: "/health",
	})
	if err != nil {
		return err
	}

	b.model = modelPath
	return nil
}

// Infer runs a completion against the loaded model. The model name sent to
// llama-server is informational only.
func (b *ServerBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.Lock()
	loaded := b.model
	b.mu.Unlock()

	if req.ModelPath != "" && req.ModelPath != loaded {
		if err := b.Load(ctx, req.ModelPath); err != nil {
			return nil, fmt.Errorf("failed to switch model: %w", err)
		}
	}

	named := *req
	named.ModelPath = filepath.Base(req.ModelPath)

	resp, err := b.Backend.Infer(ctx, &named)
	if err != nil {
		return nil, err
	}
	resp.Metadata.Model = req.ModelPath

	return resp, nil
}

func (b *ServerBackend) serverArgs(modelPath string) []string {
	args := []string{
		"--model", modelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(b.opts.Port),
	}
	if b.opts.Device.IsGPU() {
		args = append(args, "-ngl", "999")
	}

	return append(args, b.opts.ExtraArgs...)
}

// Close stops the managed server.
func (b *ServerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opts.Servers.Running(serverName, b.opts.Port) {
		return nil
	}
	b.model = ""
	return b.opts.Servers.StopServer(serverName, b.opts.Port)
}
