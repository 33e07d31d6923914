package model

import (
	"sync"
	"time"
)

// ModelType is the type of a model.
type ModelType string

const (
	// ModelTypeLLM is the type of a large language model.
	ModelTypeLLM ModelType = "llm"

	// ModelTypeTTS is the type of a text-to-speech model.
	ModelTypeTTS ModelType = "tts"
)

// ModelStatus is the current loading status of a model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model is available on disk but not loaded.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoaded indicates that a backend loaded the model.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model failed to load.
	ModelStatusFailed ModelStatus = "failed"
)

// ModelInstance represents a provisioned model.
type ModelInstance struct {
	LoadedAt *time.Time
	ID       string
	Path     string
	Type     ModelType
	Status   ModelStatus
	Error    string
	mu       sync.RWMutex
}

// Info is a point-in-time view of a model instance.
type Info struct {
	LoadedAt *time.Time  `json:"loaded_at,omitempty" doc:"When a backend loaded the model"`
	ID       string      `json:"id"`
	Type     ModelType   `json:"type" enum:"llm,tts"`
	Status   ModelStatus `json:"status" enum:"unloaded,loaded,failed"`
	Error    string      `json:"error,omitempty"`
}

// NewModelInstance creates a new model instance used by the typ service.
func NewModelInstance(typ ModelType, id, path string) *ModelInstance {
	return &ModelInstance{
		ID:     id,
		Path:   path,
		Type:   typ,
		Status: ModelStatusUnloaded,
	}
}

// Info returns a copy of the instance state.
func (mi *ModelInstance) Info() Info {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return Info{
		ID:       mi.ID,
		Type:     mi.Type,
		Status:   mi.Status,
		LoadedAt: mi.LoadedAt,
		Error:    mi.Error,
	}
}

// SetStatus sets the status of the model instance.
func (mi *ModelInstance) SetStatus(status ModelStatus) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		mi.LoadedAt = &now
		mi.Error = ""
	}
}

// SetError marks the instance as failed with err.
func (mi *ModelInstance) SetError(err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = ModelStatusFailed
	mi.Error = err.Error()
}

// CurrentStatus returns the status under the instance lock.
func (mi *ModelInstance) CurrentStatus() ModelStatus {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.Status
}
