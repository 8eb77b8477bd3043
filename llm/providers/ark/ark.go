// Package ark wraps Volcengine's Ark endpoint, which is also
// OpenAI-wire-compatible and hosts the Kimi and Doubao physical
// routes plus a fallback DeepSeek route (§4.1, §4.5).
package ark

import (
	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/llm/providers/openaicompat"
)

const (
	defaultBaseURL      = "https://ark.cn-beijing.volces.com"
	defaultEndpointPath = "/api/v3/chat/completions"
	defaultModelsPath   = "/api/v3/models"
)

// Config configures one Ark-hosted model route. Model is Ark's
// endpoint ID for the deployed model, not a public model name.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func newWithName(name string, cfg Config, logger *zap.Logger) *openaicompat.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName:   name,
		APIKey:         cfg.APIKey,
		BaseURL:        baseURL,
		EndpointPath:   defaultEndpointPath,
		ModelsEndpoint: defaultModelsPath,
		DefaultModel:   cfg.Model,
	}, logger)
}

// NewDeepseek builds the "ark-deepseek" physical model client.
func NewDeepseek(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	return newWithName("ark-deepseek", cfg, logger)
}

// NewKimi builds the "ark-kimi" physical model client.
func NewKimi(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	return newWithName("ark-kimi", cfg, logger)
}

// NewDoubao builds the "ark-doubao" physical model client.
func NewDoubao(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	return newWithName("ark-doubao", cfg, logger)
}
