package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// HealthCheckResult is the per-logical-model outcome reported to
// callers. ErrorType is one of a fixed taxonomy so upstream error
// strings never leak to API consumers (§4.6.8).
type HealthCheckResult struct {
	Model     LogicalModel
	Healthy   bool
	Latency   time.Duration
	ErrorType string
}

const (
	errTypeDNS        = "dns_error"
	errTypeConnection = "connection_error"
	errTypeTimeout    = "timeout"
	errTypeRateLimit  = "rate_limit"
	errTypeQuota      = "quota_exhausted"
	errTypeServiceErr = "service_error"
	errTypeUnknown    = "unknown"
)

// HealthCheck probes every configured logical model in parallel with a
// minimal request and classifies failures without leaking upstream
// error text. Only the logical model set is probed — when load
// balancing resolves a logical model to a physical route, the
// physical model is not separately health-checked.
func (c *Core) HealthCheck(ctx context.Context, models []LogicalModel) map[LogicalModel]HealthCheckResult {
	results := make(map[LogicalModel]HealthCheckResult, len(models))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, model := range models {
		wg.Add(1)
		go func(model LogicalModel) {
			defer wg.Done()
			res := c.probeOne(ctx, model)
			mu.Lock()
			results[model] = res
			mu.Unlock()
		}(model)
	}
	wg.Wait()
	return results
}

func (c *Core) probeOne(ctx context.Context, model LogicalModel) HealthCheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	physical, err := c.resolvePhysical(probeCtx, ChatRequest{LogicalModel: model})
	if err != nil {
		return HealthCheckResult{Model: model, Healthy: false, ErrorType: errTypeUnknown}
	}

	client, err := c.pool.Get(physical)
	if err != nil {
		return HealthCheckResult{Model: model, Healthy: false, ErrorType: errTypeUnknown}
	}

	type prober interface {
		HealthCheck(ctx context.Context) HealthResult
	}
	p, ok := client.(prober)
	if !ok {
		return HealthCheckResult{Model: model, Healthy: true}
	}

	hr := p.HealthCheck(probeCtx)
	return HealthCheckResult{
		Model:     model,
		Healthy:   hr.Status == "healthy",
		Latency:   hr.Latency,
		ErrorType: classifyHealthError(probeCtx, hr),
	}
}

func classifyHealthError(ctx context.Context, hr HealthResult) string {
	if hr.Status == "healthy" {
		return ""
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errTypeTimeout
	}
	lower := strings.ToLower(hr.ErrorType)
	switch {
	case strings.Contains(lower, "dns"):
		return errTypeDNS
	case strings.Contains(lower, "timeout"):
		return errTypeTimeout
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate"):
		return errTypeRateLimit
	case strings.Contains(lower, "quota"):
		return errTypeQuota
	case strings.Contains(lower, "transport"), strings.Contains(lower, "connection"):
		return errTypeConnection
	case strings.HasPrefix(lower, "http_5"):
		return errTypeServiceErr
	default:
		return errTypeUnknown
	}
}
