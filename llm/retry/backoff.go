// Package retry provides exponential backoff with jitter for LLM
// provider calls (§4.6.1, §7).
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// Policy configures a retry run.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	OnRetry      func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy is tuned for LLM API calls: a handful of attempts with
// an exponential backoff bounded well under typical per-model timeouts.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ErrCancelled is returned when context cancellation aborts a retry
// loop during its backoff wait.
var ErrCancelled = errors.New("retry cancelled")

// Do runs fn, retrying on retryable errors per policy, until success,
// an unretryable error, exhausted attempts, or context cancellation.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy = normalize(policy)

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateDelay(policy, attempt)
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, lastErr, delay)
			}
			logger.Debug("retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ErrCancelled
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= policy.MaxRetries {
			break
		}
	}
	return lastErr
}

// IsRetryable classifies an error: a *types.Error is retried exactly
// when its Retryable flag is set (the providers set it for transport
// failures, timeouts, 429 and 5xx responses); any other error is
// treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *types.Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	// Unclassified errors (raw transport failures) default to retryable;
	// this mirrors the teacher's "no RetryableErrors configured -> retry
	// everything" fallback.
	return true
}

func normalize(p Policy) Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy().InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy().MaxDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = DefaultPolicy().Multiplier
	}
	return p
}

func calculateDelay(p Policy, attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}
