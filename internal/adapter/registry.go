package adapter

import (
	"fmt"
	"sort"
	"sync"

	"mcphub/internal/hub"
	"mcphub/pkg/logging"
)

// Registry maps server types to adapter factories. It is populated at
// composition time; adding a managed-server kind is a registration, not a
// change to the lifecycle controller.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for the given server type.
func (r *Registry) Register(serverType string, factory Factory) error {
	if serverType == "" {
		return fmt.Errorf("adapter type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("adapter factory for %q must not be nil", serverType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[serverType]; exists {
		return fmt.Errorf("adapter type %q already registered", serverType)
	}
	r.factories[serverType] = factory

	logging.Debug("AdapterRegistry", "Registered adapter type: %s", serverType)
	return nil
}

// New builds an adapter for the configuration's type.
func (r *Registry) New(cfg hub.ServerConfig) (ServerAdapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no adapter registered for server type %q", cfg.Type)
	}
	return factory(cfg)
}

// Types returns the registered server types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
