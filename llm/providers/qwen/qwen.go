// Package qwen wraps Alibaba Dashscope's OpenAI-compatible endpoint.
package qwen

import (
	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultModel   = "qwen-plus-latest"
)

// Config configures the Qwen provider client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// New builds a qwen ProviderClient registered under physical model
// name "qwen" (§3).
func New(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName: "qwen",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		RequestHook: func(body *openaicompat.ChatCompletionRequest, enableThinking bool) {
			body.EnableThinking = &enableThinking
		},
	}, logger)
}
