package llm

import (
	"context"
	"sync"
	"time"
)

// StreamProgressive spawns one concurrent producer per model, load
// balancing each independently (so two "deepseek" entries in the same
// batch may land on different physical routes — intentional, §4.6.6),
// and multiplexes their events onto a single FIFO channel. The channel
// closes once every producer has emitted exactly one terminal event
// (complete or error); token events may be any non-negative count and
// interleave arbitrarily across models, but preserve per-model order.
//
// If the caller abandons the returned channel (stops receiving) and
// cancels ctx, every producer's cancellation releases its own
// rate-limiter slot via ChatStream's pump.
func (c *Core) StreamProgressive(ctx context.Context, base ChatRequest, models []LogicalModel) <-chan ProgressiveEvent {
	out := make(chan ProgressiveEvent)

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		for _, model := range models {
			wg.Add(1)
			go func(model LogicalModel) {
				defer wg.Done()
				c.streamOneModel(ctx, base, model, out)
			}(model)
		}
		wg.Wait()
	}()

	return out
}

// streamOneModel drives a single model's producer: resolve its
// physical route, open a structured stream against it, and publish
// token/complete/error events until the stream ends.
func (c *Core) streamOneModel(ctx context.Context, base ChatRequest, model LogicalModel, out chan<- ProgressiveEvent) {
	start := time.Now()
	req := requestFor(base, model)
	req.YieldStructured = true

	physical, err := c.resolvePhysical(ctx, req)
	if err != nil {
		emit(ctx, out, ProgressiveEvent{Kind: EventError, LLM: model, Err: err, Duration: time.Since(start), Timestamp: time.Now()})
		return
	}
	req.LogicalModel = physical
	req.SkipLoadBalancing = true

	chunks, err := c.ChatStream(ctx, req)
	if err != nil {
		emit(ctx, out, ProgressiveEvent{Kind: EventError, LLM: model, Err: err, Duration: time.Since(start), Timestamp: time.Now()})
		return
	}

	tokenCount := 0
	for {
		select {
		case <-ctx.Done():
			emit(ctx, out, ProgressiveEvent{Kind: EventError, LLM: model, Err: ctx.Err(), Duration: time.Since(start), Timestamp: time.Now()})
			return
		case chunk, ok := <-chunks:
			if !ok {
				emit(ctx, out, ProgressiveEvent{Kind: EventComplete, LLM: model, Duration: time.Since(start), TokenCount: tokenCount, Timestamp: time.Now()})
				return
			}
			if chunk.Kind != ChunkToken && chunk.Kind != ChunkThinking {
				continue
			}
			tokenCount++
			emit(ctx, out, ProgressiveEvent{Kind: EventToken, LLM: model, Token: chunk.Content, Timestamp: time.Now()})
		}
	}
}

func emit(ctx context.Context, out chan<- ProgressiveEvent, ev ProgressiveEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
