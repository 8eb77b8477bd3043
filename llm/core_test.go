package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycosa9527/MindGraph-sub001/llm/balancer"
	"github.com/lycosa9527/MindGraph-sub001/llm/circuitbreaker"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

func TestChat_ReturnsContentOnSuccess(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "hello")})
	content, err := c.Chat(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestChatWithUsage_ReturnsNormalizedUsage(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "hello")})
	_, usage, err := c.ChatWithUsage(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 15, usage.TotalTokens)
}

func TestChat_UnknownLogicalModelErrors(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "hello")})
	_, err := c.Chat(context.Background(), ChatRequest{LogicalModel: "nonexistent", Prompt: "hi"})
	assert.Error(t, err)
	assert.Equal(t, types.ErrModelNotFound, types.GetErrorCode(err))
}

func TestChat_PropagatesNonRetryableUpstreamFailureWithoutRetry(t *testing.T) {
	failing := alwaysFail("qwen", types.NewError(types.ErrUpstreamError, "down").WithRetryable(false))
	c := testCore(map[string]ProviderClient{"qwen": failing})
	_, err := c.Chat(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	assert.Error(t, err)
	assert.Equal(t, int64(1), failing.Calls())
}

func TestChat_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	failing := alwaysFail("qwen", types.NewError(types.ErrUpstreamError, "down").WithRetryable(false))
	c := testCore(map[string]ProviderClient{"qwen": failing})
	req := ChatRequest{LogicalModel: "qwen", Prompt: "hi"}

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = c.Chat(context.Background(), req)
	}
	assert.Error(t, lastErr)
	assert.Equal(t, types.ErrCircuitOpen, types.GetErrorCode(lastErr))
}

func TestChat_RoutesAroundOpenCircuitToSiblingCandidate(t *testing.T) {
	failing := alwaysFail("deepseek", types.NewError(types.ErrUpstreamError, "down").WithRetryable(false))
	healthy := alwaysOK("ark-deepseek", "fallback")
	table := map[string][]balancer.Candidate{
		"deepseek": {{Physical: "deepseek", Weight: 1}, {Physical: "ark-deepseek", Weight: 1}},
	}
	c := testCoreWithTable(map[string]ProviderClient{"deepseek": failing, "ark-deepseek": healthy}, table, balancer.PolicyRoundRobin)
	req := ChatRequest{LogicalModel: "deepseek", Prompt: "hi"}

	// Round-robin alternates deepseek/ark-deepseek until deepseek
	// accumulates enough consecutive failures (default threshold 5) to
	// trip its own breaker; ark-deepseek's successes don't affect it.
	for i := 0; i < 9; i++ {
		c.Chat(context.Background(), req)
	}
	require.Equal(t, circuitbreaker.StateOpen, c.breakers.State("deepseek"))
	callsBefore := failing.Calls()

	for i := 0; i < 5; i++ {
		content, err := c.Chat(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "fallback", content)
	}
	assert.Equal(t, callsBefore, failing.Calls(), "deepseek should receive no further traffic while its breaker is open")
	assert.Greater(t, healthy.Calls(), int64(0))
}

func TestChat_SkipLoadBalancingUsesPhysicalDirectly(t *testing.T) {
	c := testCore(map[string]ProviderClient{"ark-deepseek": alwaysOK("ark-deepseek", "direct")})
	content, err := c.Chat(context.Background(), ChatRequest{LogicalModel: "ark-deepseek", Prompt: "hi", SkipLoadBalancing: true})
	require.NoError(t, err)
	assert.Equal(t, "direct", content)
}

func TestMulti_WaitsForAllAndDoesNotCancelSiblingsOnFailure(t *testing.T) {
	c := testCore(map[string]ProviderClient{
		"qwen":     alwaysOK("qwen", "a"),
		"deepseek": alwaysFail("deepseek", types.NewError(types.ErrUpstreamError, "down")),
	})
	results := c.Multi(context.Background(), ChatRequest{Prompt: "hi"}, []LogicalModel{"qwen", "deepseek"})

	require.Len(t, results, 2)
	assert.True(t, results["qwen"].Success)
	assert.Equal(t, "a", results["qwen"].Content)
	assert.False(t, results["deepseek"].Success)
	assert.Error(t, results["deepseek"].Err)
}

func TestProgressive_EmitsExactlyOneEventPerModel(t *testing.T) {
	c := testCore(map[string]ProviderClient{
		"qwen":     alwaysOK("qwen", "a"),
		"deepseek": alwaysOK("deepseek", "b"),
	})
	seen := map[LogicalModel]int{}
	for res := range c.Progressive(context.Background(), ChatRequest{Prompt: "hi"}, []LogicalModel{"qwen", "deepseek"}) {
		seen[res.LLM]++
	}
	assert.Equal(t, 1, seen["qwen"])
	assert.Equal(t, 1, seen["deepseek"])
}

func TestRace_ReturnsFirstSuccess(t *testing.T) {
	c := testCore(map[string]ProviderClient{
		"qwen":     alwaysOK("qwen", "fast"),
		"deepseek": alwaysFail("deepseek", types.NewError(types.ErrUpstreamError, "down")),
	})
	res, err := c.Race(context.Background(), ChatRequest{Prompt: "hi"}, []LogicalModel{"qwen", "deepseek"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRace_AggregatesFailureWhenAllFail(t *testing.T) {
	c := testCore(map[string]ProviderClient{
		"qwen":     alwaysFail("qwen", types.NewError(types.ErrUpstreamError, "down-a")),
		"deepseek": alwaysFail("deepseek", types.NewError(types.ErrUpstreamError, "down-b")),
	})
	_, err := c.Race(context.Background(), ChatRequest{Prompt: "hi"}, []LogicalModel{"qwen", "deepseek"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "qwen")
	assert.Contains(t, err.Error(), "deepseek")
}

func TestChatStream_ForwardsTokensAndClosesChannel(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "tok")})
	ch, err := c.ChatStream(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	require.NoError(t, err)

	var tokens []string
	for chunk := range ch {
		if chunk.Kind == ChunkToken {
			tokens = append(tokens, chunk.Content)
		}
	}
	assert.Equal(t, []string{"tok", " done"}, tokens)
}

func TestChatStream_DiscardsThinkingWhenNotStructured(t *testing.T) {
	thinking := &fakeClient{
		name: "qwen",
		streamFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk, 2)
			ch <- StreamChunk{Kind: ChunkThinking, Content: "reasoning..."}
			ch <- StreamChunk{Kind: ChunkToken, Content: "answer"}
			close(ch)
			return ch, nil
		},
	}
	c := testCore(map[string]ProviderClient{"qwen": thinking})
	ch, err := c.ChatStream(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi", YieldStructured: false})
	require.NoError(t, err)

	var got []StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "answer", got[0].Content)
}

func TestChatStream_CircuitOpenRejectsImmediately(t *testing.T) {
	failing := alwaysFail("qwen", types.NewError(types.ErrUpstreamError, "down"))
	c := testCore(map[string]ProviderClient{"qwen": failing})
	for i := 0; i < 10; i++ {
		c.Chat(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	}
	_, err := c.ChatStream(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi"})
	assert.Equal(t, types.ErrCircuitOpen, types.GetErrorCode(err))
}

func TestStreamProgressive_EmitsExactlyOneTerminalEventPerModel(t *testing.T) {
	c := testCore(map[string]ProviderClient{
		"qwen":     alwaysOK("qwen", "a"),
		"deepseek": alwaysFail("deepseek", types.NewError(types.ErrUpstreamError, "down")),
	})

	terminal := map[LogicalModel]int{}
	tokensPerModel := map[LogicalModel][]string{}
	for ev := range c.StreamProgressive(context.Background(), ChatRequest{Prompt: "hi"}, []LogicalModel{"qwen", "deepseek"}) {
		switch ev.Kind {
		case EventComplete, EventError:
			terminal[ev.LLM]++
		case EventToken:
			tokensPerModel[ev.LLM] = append(tokensPerModel[ev.LLM], ev.Token)
		}
	}
	assert.Equal(t, 1, terminal["qwen"])
	assert.Equal(t, 1, terminal["deepseek"])
	assert.Equal(t, []string{"a", " done"}, tokensPerModel["qwen"])
}

func TestHealthCheck_ReportsHealthyWhenProviderDoesNotImplementProbe(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "a")})
	results := c.HealthCheck(context.Background(), []LogicalModel{"qwen"})
	require.Contains(t, results, LogicalModel("qwen"))
	assert.True(t, results["qwen"].Healthy)
}

func TestHealthCheck_UnknownModelReportsUnhealthy(t *testing.T) {
	c := testCore(map[string]ProviderClient{"qwen": alwaysOK("qwen", "a")})
	results := c.HealthCheck(context.Background(), []LogicalModel{"nonexistent"})
	assert.False(t, results["nonexistent"].Healthy)
}

func TestChat_RespectsPerRequestTimeout(t *testing.T) {
	slow := &fakeClient{
		name: "qwen",
		chatFn: func(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return ChatResult{Content: "late"}, nil
			case <-ctx.Done():
				return ChatResult{}, ctx.Err()
			}
		},
	}
	c := testCore(map[string]ProviderClient{"qwen": slow})
	_, err := c.Chat(context.Background(), ChatRequest{LogicalModel: "qwen", Prompt: "hi", Timeout: 5 * time.Millisecond})
	assert.Error(t, err)
}
