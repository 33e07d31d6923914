package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/eduvox/internal/backend"
	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/model"
)

// MockBackend is a backend addressed by model name.
type MockBackend struct {
	mock.Mock
	provider backend.BackendProvider
}

func (m *MockBackend) Provider() backend.BackendProvider {
	return m.provider
}

func (m *MockBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*backend.Response); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close() error {
	return nil
}

// MockLocalBackend is a backend that runs provisioned model files.
type MockLocalBackend struct {
	MockBackend
}

func (m *MockLocalBackend) ResolveModelPath(basePath string) (string, error) {
	args := m.Called(basePath)
	return args.String(0), args.Error(1)
}

func (m *MockLocalBackend) Load(ctx context.Context, modelPath string) error {
	args := m.Called(ctx, modelPath)
	return args.Error(0)
}

// newManager provisions one local model per entry of files, keyed by model ID.
func newManager(t *testing.T, cfg *config.Config, files map[string]string) *model.Manager {
	t.Helper()
	t.Setenv("EDUVOX_MODELS_PATH", t.TempDir())

	dir := t.TempDir()
	for id, name := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))

		mc := config.ModelConfig{}
		mc.SetLocalSource(config.LocalSource{Path: path})
		cfg.Models[id] = mc
	}

	m := model.NewManager()
	require.NoError(t, m.LoadModelsFromConfig(context.Background(), cfg))
	return m
}

func newConfig() *config.Config {
	cfg := &config.Config{Version: "1"}
	cfg.ApplyDefaults()
	return cfg
}
