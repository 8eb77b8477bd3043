package llm

import (
	"context"
	"sync"
	"time"
)

// requestFor builds a per-model ChatRequest sharing everything from
// base except the logical model being targeted.
func requestFor(base ChatRequest, logical LogicalModel) ChatRequest {
	req := base
	req.LogicalModel = logical
	return req
}

// Multi fans out to every requested logical model concurrently and
// waits for all to finish before returning (§4.6.4). No early
// termination: a failing model does not cancel its siblings.
func (c *Core) Multi(ctx context.Context, base ChatRequest, models []LogicalModel) map[LogicalModel]ProgressiveResult {
	results := make(map[LogicalModel]ProgressiveResult, len(models))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, model := range models {
		wg.Add(1)
		go func(model LogicalModel) {
			defer wg.Done()
			start := time.Now()
			content, err := c.Chat(ctx, requestFor(base, model))
			res := ProgressiveResult{LLM: model, Content: content, Duration: time.Since(start), Success: err == nil, Err: err}
			mu.Lock()
			results[model] = res
			mu.Unlock()
		}(model)
	}
	wg.Wait()
	return results
}

// Progressive is Multi but yields each model's result on a channel as
// soon as that model finishes, in completion order rather than input
// order (§4.6.5). Exactly one event is emitted per requested model;
// the channel is closed once every model has reported.
func (c *Core) Progressive(ctx context.Context, base ChatRequest, models []LogicalModel) <-chan ProgressiveResult {
	out := make(chan ProgressiveResult)
	go func() {
		defer close(out)
		var wg sync.WaitGroup
		for _, model := range models {
			wg.Add(1)
			go func(model LogicalModel) {
				defer wg.Done()
				start := time.Now()
				content, err := c.Chat(ctx, requestFor(base, model))
				res := ProgressiveResult{LLM: model, Content: content, Duration: time.Since(start), Success: err == nil, Err: err}
				select {
				case out <- res:
				case <-ctx.Done():
				}
			}(model)
		}
		wg.Wait()
	}()
	return out
}

// Race is Progressive but returns the first successful completion and
// cancels the rest; if every model fails, it returns an aggregate
// failure (§4.6.7).
func (c *Core) Race(ctx context.Context, base ChatRequest, models []LogicalModel) (ProgressiveResult, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := c.Progressive(raceCtx, base, models)

	var failures []ProgressiveResult
	for i := 0; i < len(models); i++ {
		res, ok := <-results
		if !ok {
			break
		}
		if res.Success {
			return res, nil
		}
		failures = append(failures, res)
	}

	return ProgressiveResult{}, aggregateFailure(failures)
}
