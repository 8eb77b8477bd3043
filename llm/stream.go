package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/lycosa9527/MindGraph-sub001/llm/ratelimit"
	"github.com/lycosa9527/MindGraph-sub001/llm/tokentracker"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

// ChatStream is the streaming analogue of Chat (§4.6.3). The returned
// channel is closed when the stream ends; the rate-limiter slot is
// held for the stream's entire lifetime and released on its first
// exit path (normal end, upstream error, or ctx cancellation).
//
// When req.YieldStructured is false, thinking chunks are discarded and
// only token content is forwarded — the "plain" yield mode.
func (c *Core) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	timeout := c.timeoutFor(req.LogicalModel)
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	physical, err := c.resolvePhysical(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	if !c.breakers.CanCall(physical) {
		cancel()
		return nil, types.NewError(types.ErrCircuitOpen, fmt.Sprintf("circuit open for %s", physical)).WithProvider(physical)
	}

	client, err := c.pool.Get(physical)
	if err != nil {
		cancel()
		return nil, err
	}

	limiter := c.limiters.Get(ctx, physical)
	if acquireErr := limiter.Acquire(ctx); acquireErr != nil {
		cancel()
		return nil, acquireErr
	}

	upstream, err := client.StreamChat(ctx, req.messages(), req.Temperature, req.MaxTokens, req.EnableThinking)
	if err != nil {
		limiter.Release(context.Background())
		cancel()
		c.breakers.Record(physical, false, 0, types.GetErrorCode(err) == types.ErrQuotaExceeded)
		return nil, err
	}

	out := make(chan StreamChunk)
	go c.pumpStream(ctx, cancel, limiter, physical, req, upstream, out)
	return out, nil
}

func (c *Core) pumpStream(ctx context.Context, cancel context.CancelFunc, limiter *ratelimit.Limiter, physical PhysicalModel, req ChatRequest, upstream <-chan StreamChunk, out chan<- StreamChunk) {
	start := time.Now()
	defer cancel()
	defer limiter.Release(context.Background())
	defer close(out)

	var usage types.TokenUsage
	success := true

	for {
		select {
		case <-ctx.Done():
			success = false
			c.breakers.Record(physical, false, time.Since(start), false)
			return
		case chunk, ok := <-upstream:
			if !ok {
				c.breakers.Record(physical, success, time.Since(start), false)
				if success && c.tracker != nil {
					c.tracker.Track(tokentracker.Usage{
						SessionID:      req.Tracking.SessionID,
						ConversationID: req.Tracking.ConversationID,
						ModelAlias:     req.LogicalModel,
						InputTokens:    usage.InputTokens,
						OutputTokens:   usage.OutputTokens,
						RequestType:    req.Tracking.RequestType,
						DiagramType:    req.Tracking.DiagramType,
						EndpointPath:   req.Tracking.EndpointPath,
						Success:        true,
					})
				}
				return
			}
			if chunk.Kind == ChunkUsage {
				usage = chunk.Usage
			}
			if chunk.Kind != ChunkToken && !req.YieldStructured {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				success = false
				c.breakers.Record(physical, false, time.Since(start), false)
				return
			}
		}
	}
}
