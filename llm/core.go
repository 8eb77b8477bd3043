package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/llm/balancer"
	"github.com/lycosa9527/MindGraph-sub001/llm/circuitbreaker"
	"github.com/lycosa9527/MindGraph-sub001/llm/ratelimit"
	"github.com/lycosa9527/MindGraph-sub001/llm/retry"
	"github.com/lycosa9527/MindGraph-sub001/llm/tokentracker"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

// DefaultTimeouts is the per-logical-model timeout table (§4.6.9).
// Applies to the full call including retries.
func DefaultTimeouts() map[LogicalModel]time.Duration {
	return map[LogicalModel]time.Duration{
		"qwen":     70 * time.Second,
		"deepseek": 90 * time.Second,
		"kimi":     70 * time.Second,
		"doubao":   70 * time.Second,
	}
}

const defaultTimeout = 70 * time.Second

// Core is the single façade exposed to agents (§4.6). It wires the
// balancer, per-physical-model circuit breakers and rate limiters,
// retry policy, and async token tracker around the raw ClientPool.
type Core struct {
	pool     *ClientPool
	balancer *balancer.Balancer
	breakers *circuitbreaker.Registry
	limiters *ratelimit.Registry
	retryPol retry.Policy
	tracker  *tokentracker.Tracker
	timeouts map[LogicalModel]time.Duration
	logger   *zap.Logger
}

// CoreConfig assembles a Core's dependencies. Timeouts and RetryPolicy
// fall back to defaults, a nil Logger falls back to a no-op logger, and
// a nil Tracker disables usage tracking; the other fields are required.
type CoreConfig struct {
	Pool        *ClientPool
	Balancer    *balancer.Balancer
	Breakers    *circuitbreaker.Registry
	Limiters    *ratelimit.Registry
	Tracker     *tokentracker.Tracker
	RetryPolicy retry.Policy
	Timeouts    map[LogicalModel]time.Duration
	Logger      *zap.Logger
}

// NewCore builds a Core from its dependencies.
func NewCore(cfg CoreConfig) *Core {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = DefaultTimeouts()
	}
	retryPol := cfg.RetryPolicy
	if retryPol.MaxRetries == 0 && retryPol.InitialDelay == 0 {
		retryPol = retry.DefaultPolicy()
	}
	return &Core{
		pool:     cfg.Pool,
		balancer: cfg.Balancer,
		breakers: cfg.Breakers,
		limiters: cfg.Limiters,
		retryPol: retryPol,
		tracker:  cfg.Tracker,
		timeouts: cfg.Timeouts,
		logger:   cfg.Logger,
	}
}

func (c *Core) timeoutFor(logical LogicalModel) time.Duration {
	if t, ok := c.timeouts[logical]; ok {
		return t
	}
	return defaultTimeout
}

// resolvePhysical applies the balancer unless the caller already named
// a physical model (§4.6.1 step 1), routing around any candidate whose
// circuit breaker is currently open (spec.md Concrete Scenario #4: a
// sibling route takes over once the primary trips).
func (c *Core) resolvePhysical(ctx context.Context, req ChatRequest) (PhysicalModel, error) {
	if req.SkipLoadBalancing {
		return req.LogicalModel, nil
	}
	excluded := c.openCandidates(req.LogicalModel)
	physical, err := c.balancer.Select(ctx, req.LogicalModel, excluded)
	if err != nil {
		return "", types.NewError(types.ErrModelNotFound, fmt.Sprintf("no route for logical model %q", req.LogicalModel)).WithCause(err)
	}
	return physical, nil
}

// openCandidates returns the subset of logical's candidate physical
// models whose breaker is currently open. If every candidate is open,
// it returns nil (don't exclude) so Select still returns a route and
// the caller surfaces the usual ErrCircuitOpen rather than a spurious
// ErrModelNotFound when nothing is healthy.
func (c *Core) openCandidates(logical LogicalModel) map[string]bool {
	candidates := c.balancer.Candidates(logical)
	if len(candidates) <= 1 {
		return nil
	}
	excluded := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		if c.breakers.IsOpen(cand.Physical) {
			excluded[cand.Physical] = true
		}
	}
	if len(excluded) == len(candidates) {
		return nil
	}
	return excluded
}

// callOnce performs one attempt at a single resolved physical model:
// circuit breaker gate, rate-limiter scoped acquisition, provider call,
// retry, and breaker/metrics recording. Used by chat, chatWithUsage,
// and as the inner step of progressive/race/multi's per-model work.
func (c *Core) callOnce(ctx context.Context, physical PhysicalModel, req ChatRequest) (ChatResult, error) {
	if !c.breakers.CanCall(physical) {
		return ChatResult{}, types.NewError(types.ErrCircuitOpen, fmt.Sprintf("circuit open for %s", physical)).WithProvider(physical)
	}

	client, err := c.pool.Get(physical)
	if err != nil {
		return ChatResult{}, err
	}

	limiter := c.limiters.Get(ctx, physical)

	var result ChatResult
	var quotaExhausted bool
	start := time.Now()

	acquireErr := limiter.AcquireScope(ctx, func() error {
		return retry.Do(ctx, c.retryPol, c.logger, func() error {
			res, callErr := client.Chat(ctx, req.messages(), req.Temperature, req.MaxTokens)
			if callErr != nil {
				if code := types.GetErrorCode(callErr); code == types.ErrQuotaExceeded {
					quotaExhausted = true
				}
				return callErr
			}
			if res.Content == "" {
				return types.NewError(types.ErrResponseInvalid, "empty response content").WithProvider(physical)
			}
			result = res
			return nil
		})
	})

	duration := time.Since(start)

	if acquireErr != nil {
		c.breakers.Record(physical, false, duration, quotaExhausted)
		return ChatResult{}, acquireErr
	}
	c.breakers.Record(physical, true, duration, false)
	return result, nil
}

// Chat resolves a physical model, performs the call, enqueues a
// UsageRecord, and returns the response content (§4.6.1).
func (c *Core) Chat(ctx context.Context, req ChatRequest) (string, error) {
	content, _, err := c.chatInternal(ctx, req, true)
	return content, err
}

// ChatWithUsage is Chat but returns usage to the caller instead of
// enqueueing a UsageRecord itself (§4.6.2).
func (c *Core) ChatWithUsage(ctx context.Context, req ChatRequest) (string, types.TokenUsage, error) {
	return c.chatInternal(ctx, req, false)
}

func (c *Core) chatInternal(ctx context.Context, req ChatRequest, trackUsage bool) (string, types.TokenUsage, error) {
	timeout := c.timeoutFor(req.LogicalModel)
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	physical, err := c.resolvePhysical(ctx, req)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	result, err := c.callOnce(ctx, physical, req)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	if trackUsage && c.tracker != nil {
		c.tracker.Track(tokentracker.Usage{
			SessionID:      req.Tracking.SessionID,
			ConversationID: req.Tracking.ConversationID,
			ModelAlias:     req.LogicalModel,
			InputTokens:    result.Usage.InputTokens,
			OutputTokens:   result.Usage.OutputTokens,
			RequestType:    req.Tracking.RequestType,
			DiagramType:    req.Tracking.DiagramType,
			EndpointPath:   req.Tracking.EndpointPath,
			Success:        true,
		})
	}

	return result.Content, result.Usage.Normalize(), nil
}
