package noisefit

import (
	"fmt"
	"sort"
	"sync"
)

//////
// Const, vars, types.
//////

// Registry holds named noise models, typically one per calibrated device
// or per calibration date. It is an explicit object rather than package
// state, so independent calibration pipelines can keep separate catalogs.
//
// Usage example:
//
//	registry := noisefit.NewRegistry()
//
//	if err := registry.Register("ibmq_belem_2026-08-20", fitted); err != nil {
//	    return err
//	}
//
//	model, ok := registry.Lookup("ibmq_belem_2026-08-20")
//
// A Registry is safe for concurrent use.
type Registry struct {
	// mu protects models.
	mu sync.RWMutex

	models map[string]*Model
}

//////
// Methods.
//////

// Register stores a model under a name. Names are unique; registering a
// name twice fails rather than silently replacing the earlier model.
func (r *Registry) Register(name string, model *Model) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "a model name is required"}
	}

	if model == nil {
		return &ValidationError{Field: "model", Reason: "a model is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[name]; exists {
		return &ValidationError{
			Field:  "name",
			Reason: fmt.Sprintf("a model named %q is already registered", name),
		}
	}

	r.models[name] = model

	return nil
}

// Lookup returns the model registered under a name, and whether one was.
func (r *Registry) Lookup(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[name]

	return model, ok
}

// Names lists the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))

	for name := range r.models {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

//////
// Factory.
//////

// NewRegistry builds an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}
