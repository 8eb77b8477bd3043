package llm

import (
	"context"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// ProviderClient is the single-provider transport contract every
// vendor adapter implements. One ProviderClient wraps exactly one
// remote chat endpoint (§4.1).
type ProviderClient interface {
	// Chat performs a synchronous chat completion.
	Chat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (ChatResult, error)

	// StreamChat performs a streaming chat completion. The returned
	// channel is closed by the producer once the stream ends (normally,
	// on error, or on ctx cancellation). A single ChunkUsage chunk is
	// sent at the end if the upstream reports usage.
	StreamChat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan StreamChunk, error)

	// Name returns the provider's physical model name, as registered in
	// the ClientPool.
	Name() string
}
