package llm

import (
	"sync"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// ErrUnknownModel is returned by ClientPool.Get for a physical model
// name that was never registered.
var ErrUnknownModel = types.NewError(types.ErrModelNotFound, "unknown physical model")

// ClientPool holds one ProviderClient per physical model. It is built
// once at startup and never mutated afterward (§4.2).
type ClientPool struct {
	mu      sync.RWMutex
	clients map[PhysicalModel]ProviderClient
}

// NewClientPool builds a pool from a startup-time registration map.
func NewClientPool(clients map[PhysicalModel]ProviderClient) *ClientPool {
	cp := &ClientPool{clients: make(map[PhysicalModel]ProviderClient, len(clients))}
	for name, c := range clients {
		cp.clients[name] = c
	}
	return cp
}

// Get looks up the client registered for a physical model.
func (p *ClientPool) Get(model PhysicalModel) (ProviderClient, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[model]
	if !ok {
		return nil, ErrUnknownModel.WithProvider(model)
	}
	return c, nil
}

// Names returns the registered physical model names.
func (p *ClientPool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	return names
}
