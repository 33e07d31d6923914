package model

import (
	"slices"
	"sync"
)

// Registry holds the provisioned models of one configuration generation,
// grouped by the service type that uses them.
type Registry struct {
	models map[string]*ModelInstance
	order  map[ModelType][]string
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*ModelInstance),
		order:  make(map[ModelType][]string),
	}
}

// Set registers instance under its ID, replacing any previous instance.
func (r *Registry) Set(instance *ModelInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.models[instance.ID]; ok {
		r.order[prev.Type] = slices.DeleteFunc(r.order[prev.Type], func(id string) bool {
			return id == instance.ID
		})
	}

	r.models[instance.ID] = instance
	r.order[instance.Type] = append(r.order[instance.Type], instance.ID)
}

// Get returns the model instance with the given ID.
func (r *Registry) Get(id string) (*ModelInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.models[id]
	return instance, ok
}

// Lookup returns the instance with the given ID only if it serves typ.
func (r *Registry) Lookup(typ ModelType, id string) (*ModelInstance, bool) {
	instance, ok := r.Get(id)
	if !ok || instance.Type != typ {
		return nil, false
	}
	return instance, true
}

// List returns LLM models followed by TTS models, each in registration order.
func (r *Registry) List() []*ModelInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*ModelInstance, 0, len(r.models))
	for _, typ := range []ModelType{ModelTypeLLM, ModelTypeTTS} {
		for _, id := range r.order[typ] {
			instances = append(instances, r.models[id])
		}
	}

	return instances
}
