// Package ratelimit implements the sliding-window QPM + concurrency
// ceiling limiter described in spec §4.3, Redis-backed with an
// in-process memory fallback.
package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config tunes one scope's limits.
type Config struct {
	QPMLimit        int
	ConcurrentLimit int
	// PollInterval is how often Acquire re-checks the concurrency gate.
	PollInterval time.Duration
	// QPMPollInterval is how often Acquire re-checks the QPM gate.
	QPMPollInterval time.Duration
}

// DefaultConfig matches the Dashscope defaults from spec §6.
func DefaultConfig() Config {
	return Config{
		QPMLimit:        200,
		ConcurrentLimit: 50,
		PollInterval:    100 * time.Millisecond,
		QPMPollInterval: 1 * time.Second,
	}
}

// Limiter enforces per-scope QPM and concurrency ceilings across all
// workers in the deployment via Redis, falling back to an in-process
// equivalent when Redis is unavailable (§4.3).
type Limiter struct {
	scope  string
	cfg    Config
	logger *zap.Logger

	redis *redis.Client // nil => memory-only mode

	mem memoryState
}

// New creates a Limiter for scope, using client for Redis coordination.
// If client is nil, or a connectivity probe against it fails, the
// limiter runs purely in-process for the remainder of its lifetime.
func New(ctx context.Context, scope string, cfg Config, client *redis.Client, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QPMLimit <= 0 {
		cfg.QPMLimit = DefaultConfig().QPMLimit
	}
	if cfg.ConcurrentLimit <= 0 {
		cfg.ConcurrentLimit = DefaultConfig().ConcurrentLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.QPMPollInterval <= 0 {
		cfg.QPMPollInterval = DefaultConfig().QPMPollInterval
	}

	l := &Limiter{scope: scope, cfg: cfg, logger: logger.With(zap.String("scope", scope))}

	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err == nil {
			l.redis = client
			return l
		}
		logger.Warn("redis unavailable for rate limiter, falling back to memory", zap.Error(err))
	}
	l.mem.timestamps = list.New()
	return l
}

func (l *Limiter) qpmKey() string        { return fmt.Sprintf("llm:rate:qpm:%s", l.scope) }
func (l *Limiter) concurrentKey() string { return fmt.Sprintf("llm:rate:concurrent:%s", l.scope) }
func (l *Limiter) statsKey() string      { return fmt.Sprintf("llm:rate:stats:%s", l.scope) }

// Acquire blocks until both the concurrency ceiling and the QPM
// sliding window have room, then atomically records the slot. Callers
// must call Release exactly once per successful Acquire, on every exit
// path.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.redis != nil {
		return l.redisAcquire(ctx)
	}
	return l.memoryAcquire(ctx)
}

// Release decrements the concurrency counter by exactly one, clamped
// at zero.
func (l *Limiter) Release(ctx context.Context) {
	if l.redis != nil {
		l.redisRelease(ctx)
		return
	}
	l.memoryRelease()
}

// AcquireScope is a scoped-resource helper: it acquires a slot, runs
// fn, and guarantees Release on every exit path (including panics
// propagated from fn), matching spec §4.3's "scoped acquisition"
// contract.
func (l *Limiter) AcquireScope(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release(context.Background())
	return fn()
}

// Stats is a snapshot of a scope's in-flight call count and the number
// of acquisitions in the current QPM window.
type Stats struct {
	ConcurrentInFlight int
	QPMInWindow        int
}

// Saturated reports whether the scope is currently at its concurrency
// or QPM ceiling, used by the load balancer's rate-limit-aware mode.
func (l *Limiter) Saturated(ctx context.Context) bool {
	var st Stats
	if l.redis != nil {
		var err error
		st, err = l.peek(ctx)
		if err != nil {
			return false
		}
	} else {
		st = l.memoryPeek()
	}
	return st.ConcurrentInFlight >= l.cfg.ConcurrentLimit || st.QPMInWindow >= l.cfg.QPMLimit
}
