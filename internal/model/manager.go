package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/ekisa-team/eduvox/internal/config"
	"github.com/ekisa-team/eduvox/internal/config/source"
	"github.com/ekisa-team/eduvox/internal/envvar"
	"github.com/ekisa-team/eduvox/internal/xfs"
)

// DownloaderFactory returns the downloader for a source type.
type DownloaderFactory func(ctx context.Context, sourceType config.SourceType) (source.Downloader, error)

// Manager orchestrates model lifecycle for any model type.
type Manager struct {
	registry    *Registry
	downloaders DownloaderFactory
	mu          sync.RWMutex
}

// NewManager creates a new Manager that downloads through source.GetDownloader.
func NewManager() *Manager {
	return NewManagerWithDownloaders(source.GetDownloader)
}

// NewManagerWithDownloaders creates a Manager with a custom downloader factory.
func NewManagerWithDownloaders(factory DownloaderFactory) *Manager {
	return &Manager{
		registry:    NewRegistry(),
		downloaders: factory,
	}
}

func (m *Manager) current() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry
}

// Get returns the model instance with the given ID from the current registry.
func (m *Manager) Get(id string) (*ModelInstance, error) {
	instance, ok := m.current().Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	return instance, nil
}

// First returns the first of ids provisioned for the typ service.
func (m *Manager) First(typ ModelType, ids []string) (*ModelInstance, error) {
	if len(ids) == 0 {
		return nil, ErrNoModels
	}

	registry := m.current()
	for _, id := range ids {
		if instance, ok := registry.Lookup(typ, id); ok {
			return instance, nil
		}
	}

	return nil, fmt.Errorf("%w: no %s model among %v", ErrModelNotFound, typ, ids)
}

// Models returns the state of every provisioned model.
func (m *Manager) Models() []Info {
	instances := m.current().List()

	infos := make([]Info, 0, len(instances))
	for _, instance := range instances {
		infos = append(infos, instance.Info())
	}
	return infos
}

// LoadModelsFromConfig provisions every model assigned to a service and swaps in a new registry.
// The previous registry stays active if provisioning fails.
func (m *Manager) LoadModelsFromConfig(ctx context.Context, cfg *config.Config) error {
	registry := NewRegistry()
	previous := m.current()

	assigned := cfg.AssignedModels()
	if len(assigned) > 0 {
		modelsPath := resolveModelsPath(cfg)
		if err := source.EnsureModelsDirectory(modelsPath); err != nil {
			return fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
		}

		for _, modelID := range assigned {
			modelConfig, ok := cfg.Models[modelID]
			if !ok {
				return fmt.Errorf("%w: %s is assigned to a service but not defined", ErrModelNotFound, modelID)
			}

			modelSource, err := modelConfig.GetSource()
			if err != nil {
				return fmt.Errorf("failed to get model source for %s: %w", modelID, err)
			}

			downloader, err := m.downloaders(ctx, modelSource.Type())
			if err != nil {
				return fmt.Errorf("failed to get downloader for %s: %w", modelID, err)
			}

			downloadPath, cached, err := downloader.Download(ctx, &modelConfig, modelsPath)
			if err != nil {
				return fmt.Errorf("failed to download model %s into %s: %w", modelID, modelsPath, err)
			}

			typ := serviceType(cfg, modelID)
			if prev, ok := previous.Lookup(typ, modelID); ok && prev.Path == downloadPath {
				// Unchanged models keep their load status across reloads.
				registry.Set(prev)
			} else {
				registry.Set(NewModelInstance(typ, modelID, downloadPath))
			}
			slog.Info("Model registered", "model_id", modelID, "type", typ, "path", downloadPath, "cached", cached)
		}
	}

	m.mu.Lock()
	m.registry = registry
	m.mu.Unlock()

	for _, instance := range previous.List() {
		if _, ok := registry.Get(instance.ID); !ok {
			slog.Info("Model unregistered", "model_id", instance.ID)
		}
	}

	return nil
}

// serviceType reports which service uses modelID.
func serviceType(cfg *config.Config, modelID string) ModelType {
	if slices.Contains(cfg.Services.TTS.Models, modelID) {
		return ModelTypeTTS
	}
	return ModelTypeLLM
}

// resolveModelsPath returns the path to the models directory.
// Precedence:
// 1. EDUVOX_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func resolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.EduvoxModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
