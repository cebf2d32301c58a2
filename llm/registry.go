package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/logger"
)

// Factory creates a model resource for a name not yet in the registry.
type Factory func(name string) Model

// ModelInfo describes a registered model for listing endpoints.
type ModelInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Loaded bool   `json:"loaded"`
}

// Registry holds the live model resources by name. It is constructed once at
// startup and passed by handle into the handlers, the scheduler, and the
// streaming bridge, never reached through ambient global state.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]Model
	factory Factory
	logger  *logger.Logger
}

// NewRegistry constructs a model registry. The factory is used by GetOrLoad
// to lazily create models that have not been registered explicitly.
func NewRegistry(factory Factory, lg *logger.Logger) *Registry {
	return &Registry{
		models:  make(map[string]Model),
		factory: factory,
		logger:  lg,
	}
}

// Register binds a model resource under its name, replacing any previous one.
func (r *Registry) Register(model Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[model.Name()] = model
}

// Get returns the model registered under name.
func (r *Registry) Get(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[name]
	return model, ok
}

// Remove unregisters a model, unloading it first when needed.
// It reports whether a model was actually removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	model, ok := r.models[name]
	if ok {
		delete(r.models, name)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if model.Loaded() {
		model.Unload()
	}

	r.logger.Info("unregistered model", map[string]any{
		"model": name,
	})
	return true
}

// List returns name, concrete type and load state for every registered model.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(r.models))
	for name, model := range r.models {
		infos = append(infos, ModelInfo{
			Name:   name,
			Type:   fmt.Sprintf("%T", model),
			Loaded: model.Loaded(),
		})
	}
	return infos
}

// GetOrLoad returns the model registered under name, creating it through the
// factory when absent, and ensures it is loaded. The registry lock is only
// held for map access; Load runs outside it, since a model load can take
// long and the model synchronizes its own loading.
func (r *Registry) GetOrLoad(ctx context.Context, name string) (Model, error) {
	r.mu.Lock()
	model, ok := r.models[name]
	if !ok {
		if r.factory == nil {
			r.mu.Unlock()
			return nil, errors.NewNotFoundError(fmt.Sprintf("model %s not found", name))
		}
		model = r.factory(name)
		r.models[name] = model
		r.logger.Info("registered model", map[string]any{
			"model": name,
		})
	}
	r.mu.Unlock()

	if !model.Loaded() {
		if _, err := model.Load(ctx); err != nil {
			return nil, errors.NewBackendError(fmt.Sprintf("failed to load model %s: %s", name, err.Error()))
		}
	}

	return model, nil
}
