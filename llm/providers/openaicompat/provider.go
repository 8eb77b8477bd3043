// Package openaicompat is the shared transport base for every vendor
// adapter: Qwen, DeepSeek, Kimi, and Doubao all speak the OpenAI Chat
// Completions wire format (plain HTTP JSON for Chat, SSE for
// StreamChat), so the HTTP plumbing, SSE parsing, and HTTP-status error
// mapping live here once instead of once per vendor package (§4.1).
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/internal/pool"
	"github.com/lycosa9527/MindGraph-sub001/llm"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

// Config configures one vendor's wire endpoint.
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	DefaultModel string

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string
	// ModelsEndpoint defaults to "/v1/models", used for HealthCheck.
	ModelsEndpoint string

	Timeout time.Duration

	// BuildHeaders overrides the default "Authorization: Bearer <key>"
	// header, for vendors with a different auth scheme.
	BuildHeaders func(req *http.Request, apiKey string)

	// RequestHook lets a vendor wrapper set fields this base doesn't
	// know about (e.g. Qwen's enable_thinking flag) before marshaling.
	RequestHook func(body *ChatCompletionRequest, enableThinking bool)
}

// Provider implements llm.ProviderClient directly. Vendor constructors
// return a *Provider and customise it only through Config and its hooks.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Provider from cfg.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the physical model name this client was registered
// under in the ClientPool (§4.2).
func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.cfg.BuildHeaders != nil {
		p.cfg.BuildHeaders(req, p.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) buildRequestBody(messages []types.Message, temperature float32, maxTokens int, stream, enableThinking bool) ChatCompletionRequest {
	body := ChatCompletionRequest{
		Model:       p.cfg.DefaultModel,
		Messages:    toWireMessages(messages),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if p.cfg.RequestHook != nil {
		p.cfg.RequestHook(&body, enableThinking)
	}
	return body
}

// marshalBody encodes body to JSON using a pooled buffer, so the hot
// request path doesn't allocate a fresh buffer per call.
func marshalBody(body ChatCompletionRequest) ([]byte, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Chat performs a synchronous, non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int) (llm.ChatResult, error) {
	body := p.buildRequestBody(messages, temperature, maxTokens, false, false)

	payload, err := marshalBody(body)
	if err != nil {
		return llm.ChatResult{}, types.NewError(types.ErrInvalidRequest, "marshal request").WithCause(err).WithProvider(p.cfg.ProviderName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return llm.ChatResult{}, types.NewError(types.ErrInternalError, "build request").WithCause(err).WithProvider(p.cfg.ProviderName)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.ChatResult{}, mapTransportError(err, p.cfg.ProviderName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return llm.ChatResult{}, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), p.cfg.ProviderName)
	}

	var wire ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return llm.ChatResult{}, types.NewError(types.ErrResponseInvalid, "decode response").WithCause(err).WithProvider(p.cfg.ProviderName)
	}
	if len(wire.Choices) == 0 {
		return llm.ChatResult{}, types.NewError(types.ErrResponseInvalid, "no choices in response").WithProvider(p.cfg.ProviderName)
	}

	return llm.ChatResult{
		Content: wire.Choices[0].Message.Content,
		Usage: types.TokenUsage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}, nil
}

// StreamChat performs a streaming chat completion over SSE.
func (p *Provider) StreamChat(ctx context.Context, messages []types.Message, temperature float32, maxTokens int, enableThinking bool) (<-chan llm.StreamChunk, error) {
	body := p.buildRequestBody(messages, temperature, maxTokens, true, enableThinking)

	payload, err := marshalBody(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "marshal request").WithCause(err).WithProvider(p.cfg.ProviderName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build request").WithCause(err).WithProvider(p.cfg.ProviderName)
	}
	p.buildHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err, p.cfg.ProviderName)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), p.cfg.ProviderName)
	}

	return streamSSE(ctx, resp.Body, p.cfg.ProviderName, p.logger), nil
}

// HealthCheck probes the vendor's models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) llm.HealthResult {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return llm.HealthResult{Status: "unhealthy", ErrorType: "internal"}
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return llm.HealthResult{Status: "unhealthy", Latency: latency, ErrorType: "transport"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.HealthResult{Status: "unhealthy", Latency: latency, ErrorType: fmt.Sprintf("http_%d", resp.StatusCode)}
	}
	return llm.HealthResult{Status: "healthy", Latency: latency}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

// streamSSE parses an OpenAI-wire SSE body into StreamChunks, closing
// the channel when the stream ends (the [DONE] sentinel, EOF, a
// transport error, or ctx cancellation).
func streamSSE(ctx context.Context, body io.ReadCloser, providerName string, logger *zap.Logger) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					logger.Warn("sse read failed", zap.Error(err))
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wire ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &wire); err != nil {
				logger.Warn("sse decode failed", zap.Error(err), zap.String("data", data))
				continue
			}

			if wire.Usage != nil {
				select {
				case <-ctx.Done():
					return
				case ch <- llm.StreamChunk{Kind: llm.ChunkUsage, Usage: types.TokenUsage{
					InputTokens:  wire.Usage.PromptTokens,
					OutputTokens: wire.Usage.CompletionTokens,
					TotalTokens:  wire.Usage.TotalTokens,
				}}:
				}
			}

			for _, choice := range wire.Choices {
				if choice.Delta.ReasoningContent != "" {
					select {
					case <-ctx.Done():
						return
					case ch <- llm.StreamChunk{Kind: llm.ChunkThinking, Content: choice.Delta.ReasoningContent}:
					}
				}
				if choice.Delta.Content != "" {
					select {
					case <-ctx.Done():
						return
					case ch <- llm.StreamChunk{Kind: llm.ChunkToken, Content: choice.Delta.Content}:
					}
				}
			}
		}
	}()
	return ch
}

func toWireMessages(messages []types.Message) []WireMessage {
	out := make([]WireMessage, len(messages))
	for i, m := range messages {
		out[i] = WireMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
