package openaicompat

// WireMessage is one message in the OpenAI Chat Completions format.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the OpenAI-wire chat completion request
// body shared by Qwen, DeepSeek, Kimi, and Doubao (native and Ark).
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []WireMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`

	// EnableThinking is Qwen's flag to surface reasoning
	// content as a separate delta field during streaming.
	EnableThinking *bool `json:"enable_thinking,omitempty"`
}

type chatChoiceMessage struct {
	Content string `json:"content"`
}

type chatChoice struct {
	Index   int               `json:"index"`
	Message chatChoiceMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatDelta struct {
	Content string `json:"content"`
	// ReasoningContent carries thinking-mode tokens; Qwen and DeepSeek
	// both emit it as a sibling of content in streaming deltas.
	ReasoningContent string `json:"reasoning_content"`
}

type chatStreamChoice struct {
	Index int       `json:"index"`
	Delta chatDelta `json:"delta"`
}

// ChatCompletionChunk is a single SSE "data:" frame.
type ChatCompletionChunk struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []chatStreamChoice `json:"choices"`
	Usage   *chatUsage         `json:"usage,omitempty"`
}
