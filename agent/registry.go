package agent

import (
	"fmt"
	"sync"
)

// Registry holds Agents keyed by diagram type, mirroring the
// ClientPool's immutable-map-by-name idiom: agents are registered once
// at startup and looked up by callers dispatching on diagramType.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register associates an Agent with a diagram type. Re-registering the
// same type replaces the previous agent.
func (r *Registry) Register(diagramType string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[diagramType] = a
}

// Get returns the Agent registered for diagramType, or an error if
// none is registered.
func (r *Registry) Get(diagramType string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[diagramType]
	if !ok {
		return nil, fmt.Errorf("agent: no agent registered for diagram type %q", diagramType)
	}
	return a, nil
}

// DiagramTypes returns every diagram type with a registered agent.
func (r *Registry) DiagramTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	return types
}
