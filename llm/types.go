// Package llm is the LLM orchestration façade: load balancing, rate
// limiting, circuit breaking, retries, token tracking and multi-provider
// fan-out sit behind the single Core type in core.go.
package llm

import (
	"time"

	"github.com/lycosa9527/MindGraph-sub001/types"
)

// LogicalModel names a model the way a caller sees it (e.g. "deepseek").
type LogicalModel = string

// PhysicalModel names a concrete provider endpoint (e.g. "ark-deepseek").
type PhysicalModel = string

// Tracking carries the metadata a caller attaches to a request for
// later attribution in token-usage records and analytics. None of it
// affects routing or retries.
type Tracking struct {
	UserID         string
	OrgID          string
	APIKeyID       string
	RequestType    string
	DiagramType    string
	EndpointPath   string
	SessionID      string
	ConversationID string
}

// ChatRequest is the input to Core.Chat and friends.
type ChatRequest struct {
	Prompt       string
	Messages     []types.Message // takes precedence over Prompt when non-empty
	LogicalModel LogicalModel
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
	Tracking     Tracking

	// SkipLoadBalancing treats LogicalModel as an already-resolved
	// physical model and bypasses the balancer entirely.
	SkipLoadBalancing bool
	// EnableThinking requests reasoning/chain-of-thought tokens from
	// providers that support them.
	EnableThinking bool
	// YieldStructured switches ChatStream from plain mode (token chunks
	// only) to structured mode (token, thinking and usage chunks).
	YieldStructured bool
}

func (r *ChatRequest) messages() []types.Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return types.BuildMessages(r.SystemPrompt, r.Prompt)
}

// ChatResult is the output of a non-streaming call.
type ChatResult struct {
	Content string
	Usage   types.TokenUsage
}

// ChunkKind tags the variant carried by a StreamChunk.
type ChunkKind int

const (
	ChunkToken ChunkKind = iota
	ChunkThinking
	ChunkUsage
)

// StreamChunk is one element of a structured streaming response. Kind
// discriminates which fields are meaningful: Content for
// Token/Thinking, Usage for the single terminal Usage chunk.
type StreamChunk struct {
	Kind    ChunkKind
	Content string
	Usage   types.TokenUsage
}

// ProgressiveResult is the outcome of one logical model in a Multi or
// Progressive fan-out.
type ProgressiveResult struct {
	LLM      LogicalModel
	Content  string
	Duration time.Duration
	Success  bool
	Err      error
}

// ProgressiveEventKind tags a StreamProgressive event.
type ProgressiveEventKind int

const (
	EventToken ProgressiveEventKind = iota
	EventComplete
	EventError
)

// ProgressiveEvent is one element of the StreamProgressive event
// sequence.
type ProgressiveEvent struct {
	Kind      ProgressiveEventKind
	LLM       LogicalModel
	Token     string
	Duration  time.Duration
	TokenCount int
	Err       error
	Timestamp time.Time
}

// HealthResult is the outcome of one provider's HealthCheck probe;
// Core.HealthCheck turns it into a HealthCheckResult.
type HealthResult struct {
	Status    string // "healthy" | "unhealthy"
	Latency   time.Duration
	ErrorType string // provider's raw category, e.g. "transport", "internal", "http_<status>"; classified by Core.HealthCheck
}
