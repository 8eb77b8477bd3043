// Package deepseek wraps DeepSeek's native OpenAI-compatible endpoint.
// DeepSeek is the one logical model with two physical routes (native
// and Ark), so this wrapper and llm/providers/ark both produce a
// "deepseek"-flavored openaicompat.Provider registered under distinct
// physical model names (§4.5).
package deepseek

import (
	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/llm/providers/openaicompat"
)

const (
	defaultBaseURL        = "https://api.deepseek.com"
	defaultModel          = "deepseek-chat"
	defaultReasoningModel = "deepseek-reasoner"
)

// Config configures the native DeepSeek provider client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// New builds a deepseek ProviderClient registered under physical model
// name "deepseek" (§3). enableThinking swaps the model to DeepSeek's
// dedicated reasoning model rather than setting a flag, since DeepSeek
// does not support enable_thinking on its chat model.
func New(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName: "deepseek",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		RequestHook: func(body *openaicompat.ChatCompletionRequest, enableThinking bool) {
			if enableThinking {
				body.Model = defaultReasoningModel
			}
		},
	}, logger)
}
