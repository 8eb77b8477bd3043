package llm

import (
	"context"
	"sync/atomic"

	"github.com/lycosa9527/MindGraph-sub001/llm/balancer"
	"github.com/lycosa9527/MindGraph-sub001/llm/circuitbreaker"
	"github.com/lycosa9527/MindGraph-sub001/llm/ratelimit"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

// fakeClient is a scriptable ProviderClient for exercising Core without
// any real transport.
type fakeClient struct {
	name     string
	chatFn   func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error)
	streamFn func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error)
	calls    int64
}

func (f *fakeClient) Chat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.chatFn(ctx, messages, temperature, maxTokens)
}

func (f *fakeClient) StreamChat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.streamFn(ctx, messages, temperature, maxTokens, enableThinking)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Calls() int64 { return atomic.LoadInt64(&f.calls) }

// alwaysOK builds a fakeClient that always succeeds with content.
func alwaysOK(name, content string) *fakeClient {
	return &fakeClient{
		name: name,
		chatFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error) {
			return ChatResult{Content: content, Usage: types.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
		},
		streamFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk, 4)
			go func() {
				defer close(ch)
				for _, tok := range []string{content, " done"} {
					select {
					case ch <- StreamChunk{Kind: ChunkToken, Content: tok}:
					case <-ctx.Done():
						return
					}
				}
				ch <- StreamChunk{Kind: ChunkUsage, Usage: types.TokenUsage{InputTokens: 10, OutputTokens: 5}}
			}()
			return ch, nil
		},
	}
}

// alwaysFail builds a fakeClient that always returns err.
func alwaysFail(name string, err error) *fakeClient {
	return &fakeClient{
		name: name,
		chatFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error) {
			return ChatResult{}, err
		},
		streamFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error) {
			return nil, err
		},
	}
}

// testCore wires a Core around the given clients and a single-candidate
// routing table (logical == physical for each named client), using
// in-memory rate limiting and a fresh circuit breaker registry so tests
// never touch Redis.
func testCore(clients map[string]ProviderClient) *Core {
	table := make(map[string][]balancer.Candidate, len(clients))
	for name := range clients {
		table[name] = []balancer.Candidate{{Physical: name, Weight: 1}}
	}
	return NewCore(CoreConfig{
		Pool:     NewClientPool(clients),
		Balancer: balancer.New(table, balancer.PolicyWeighted, nil, nil),
		Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), nil),
		Limiters: ratelimit.NewRegistry(nil, nil, nil),
	})
}

// testCoreWithTable is testCore but with a caller-supplied routing
// table and policy, for exercising multi-candidate logical models
// (e.g. deepseek's primary/ark fallback pair, §4.5).
func testCoreWithTable(clients map[string]ProviderClient, table map[string][]balancer.Candidate, policy balancer.Policy) *Core {
	return NewCore(CoreConfig{
		Pool:     NewClientPool(clients),
		Balancer: balancer.New(table, policy, nil, nil),
		Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), nil),
		Limiters: ratelimit.NewRegistry(nil, nil, nil),
	})
}
