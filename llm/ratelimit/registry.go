package ratelimit

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Registry owns one Limiter per scope (physical model or API key),
// created lazily from a per-scope config lookup.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	client   *redis.Client
	logger   *zap.Logger
	configFn func(scope string) Config
}

// NewRegistry builds a Registry. configFn resolves a scope's limits;
// if nil, DefaultConfig() is used for every scope.
func NewRegistry(client *redis.Client, logger *zap.Logger, configFn func(scope string) Config) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configFn == nil {
		configFn = func(string) Config { return DefaultConfig() }
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		client:   client,
		logger:   logger,
		configFn: configFn,
	}
}

// Get returns (creating if needed) the Limiter for scope.
func (r *Registry) Get(ctx context.Context, scope string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[scope]; ok {
		return l
	}
	l := New(ctx, scope, r.configFn(scope), r.client, r.logger)
	r.limiters[scope] = l
	return l
}

// Saturated implements balancer.SaturationSource, letting the load
// balancer deprioritize candidates whose rate-limit scope is full.
func (r *Registry) Saturated(ctx context.Context, scope string) bool {
	return r.Get(ctx, scope).Saturated(ctx)
}
