package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	qpmWindowSeconds = 60
	qpmKeyTTL        = 120 * time.Second
	concurrentKeyTTL = 300 * time.Second
)

// redisAcquire implements the two-phase poll confirmed in the original
// rate_limiter.py: first wait for a free concurrency slot, then wait
// for room in the QPM sliding window, then commit both atomically in
// a pipeline alongside a stats counter.
func (l *Limiter) redisAcquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := l.redis.Get(ctx, l.concurrentKey()).Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if n < l.cfg.ConcurrentLimit {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := l.qpmCount(ctx)
		if err != nil {
			return err
		}
		if count < l.cfg.QPMLimit {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.QPMPollInterval):
		}
	}

	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := l.redis.TxPipeline()
	pipe.ZAdd(ctx, l.qpmKey(), redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.Expire(ctx, l.qpmKey(), qpmKeyTTL)
	pipe.Incr(ctx, l.concurrentKey())
	pipe.Expire(ctx, l.concurrentKey(), concurrentKeyTTL)
	pipe.HIncrBy(ctx, l.statsKey(), "acquired_total", 1)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *Limiter) qpmCount(ctx context.Context) (int, error) {
	now := time.Now()
	cutoff := now.Add(-qpmWindowSeconds * time.Second).UnixMilli()
	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, l.qpmKey(), "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, l.qpmKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (l *Limiter) redisRelease(ctx context.Context) {
	script := redis.NewScript(`
local v = redis.call("DECR", KEYS[1])
if v < 0 then
  redis.call("SET", KEYS[1], 0)
end
return 0
`)
	if err := script.Run(ctx, l.redis, []string{l.concurrentKey()}).Err(); err != nil {
		l.logger.Warn("rate limiter release failed", zap.Error(err))
	}
}

func (l *Limiter) peek(ctx context.Context) (Stats, error) {
	n, err := l.redis.Get(ctx, l.concurrentKey()).Int()
	if err != nil && err != redis.Nil {
		return Stats{}, err
	}
	count, err := l.qpmCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ConcurrentInFlight: n, QPMInWindow: count}, nil
}
