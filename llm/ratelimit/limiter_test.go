package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		QPMLimit:        3,
		ConcurrentLimit: 2,
		PollInterval:    5 * time.Millisecond,
		QPMPollInterval: 10 * time.Millisecond,
	}
}

func TestNew_FallsBackToMemoryWhenRedisNil(t *testing.T) {
	l := New(context.Background(), "qwen", testConfig(), nil, nil)
	assert.Nil(t, l.redis)
}

func TestNew_FallsBackToMemoryWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	l := New(context.Background(), "qwen", testConfig(), client, zap.NewNop())
	assert.Nil(t, l.redis)
}

func TestMemory_ConcurrencyCeilingBlocksUntilRelease(t *testing.T) {
	l := New(context.Background(), "qwen", testConfig(), nil, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, l.Acquire(context.Background()))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third Acquire should have blocked on the concurrency ceiling")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release(ctx)
	select {
	case <-acquired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("third Acquire never unblocked after Release")
	}
}

func TestMemory_QPMWindowEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.ConcurrentLimit = 100
	l := New(context.Background(), "qwen", cfg, nil, nil)
	ctx := context.Background()

	for i := 0; i < cfg.QPMLimit; i++ {
		require.NoError(t, l.Acquire(ctx))
		l.Release(ctx)
	}
	assert.True(t, l.Saturated(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_AcquireScopeReleasesOnPanic(t *testing.T) {
	cfg := testConfig()
	l := New(context.Background(), "qwen", cfg, nil, nil)

	func() {
		defer func() { recover() }()
		_ = l.AcquireScope(context.Background(), func() error {
			panic("boom")
		})
	}()

	st := l.memoryPeek()
	assert.Equal(t, 0, st.ConcurrentInFlight)
}

func TestMemory_AcquireScopeReleasesAfterSuccess(t *testing.T) {
	l := New(context.Background(), "qwen", testConfig(), nil, nil)
	err := l.AcquireScope(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, l.memoryPeek().ConcurrentInFlight)
}

func TestMemory_NotSaturatedInitially(t *testing.T) {
	l := New(context.Background(), "qwen", testConfig(), nil, nil)
	assert.False(t, l.Saturated(context.Background()))
}

func newRedisBackedLimiter(t *testing.T, scope string, cfg Config) (*miniredis.Miniredis, *Limiter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(context.Background(), scope, cfg, client, zap.NewNop())
	require.NotNil(t, l.redis, "limiter should have picked up the reachable redis client")
	t.Cleanup(mr.Close)
	return mr, l
}

func TestRedis_ConcurrencyCeilingBlocksUntilRelease(t *testing.T) {
	_, l := newRedisBackedLimiter(t, "qwen", testConfig())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, l.Acquire(context.Background()))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third Acquire should have blocked on the concurrency ceiling")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release(ctx)
	select {
	case <-acquired:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("third Acquire never unblocked after Release")
	}
}

func TestRedis_QPMWindowEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.ConcurrentLimit = 100
	_, l := newRedisBackedLimiter(t, "qwen", cfg)
	ctx := context.Background()

	for i := 0; i < cfg.QPMLimit; i++ {
		require.NoError(t, l.Acquire(ctx))
		l.Release(ctx)
	}
	assert.True(t, l.Saturated(ctx))

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ReleaseNeverGoesNegative(t *testing.T) {
	_, l := newRedisBackedLimiter(t, "qwen", testConfig())
	ctx := context.Background()

	l.Release(ctx)
	l.Release(ctx)

	n, err := l.redis.Get(ctx, l.concurrentKey()).Int()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedis_PeekReflectsAcquiredState(t *testing.T) {
	_, l := newRedisBackedLimiter(t, "qwen", testConfig())
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	st, err := l.peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConcurrentInFlight)
	assert.Equal(t, 1, st.QPMInWindow)
}

func TestRegistry_GetIsLazyAndCached(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	l1 := r.Get(context.Background(), "qwen")
	l2 := r.Get(context.Background(), "qwen")
	assert.Same(t, l1, l2)
}

func TestRegistry_PerScopeConfig(t *testing.T) {
	seen := map[string]Config{}
	var mu sync.Mutex
	r := NewRegistry(nil, nil, func(scope string) Config {
		mu.Lock()
		defer mu.Unlock()
		seen[scope] = Config{QPMLimit: 7, ConcurrentLimit: 1, PollInterval: time.Millisecond, QPMPollInterval: time.Millisecond}
		return seen[scope]
	})
	l := r.Get(context.Background(), "ark-kimi")
	assert.Equal(t, 7, l.cfg.QPMLimit)
}

func TestRegistry_SaturatedDelegatesToScopedLimiter(t *testing.T) {
	cfg := Config{QPMLimit: 1, ConcurrentLimit: 1, PollInterval: time.Millisecond, QPMPollInterval: time.Millisecond}
	r := NewRegistry(nil, nil, func(string) Config { return cfg })
	ctx := context.Background()

	assert.False(t, r.Saturated(ctx, "qwen"))
	require.NoError(t, r.Get(ctx, "qwen").Acquire(ctx))
	assert.True(t, r.Saturated(ctx, "qwen"))
	assert.False(t, r.Saturated(ctx, "deepseek"))
}
