package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/voice-tavern/backend/internal/config"
)

// NewChatModel 按 LLM_PROVIDER 创建模型实例，三种后端都以 eino BaseChatModel 暴露。
func NewChatModel(ctx context.Context, c config.AIConfig) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	switch c.Provider {
	case config.ProviderArk:
		return newArkModel(ctx, c)
	case config.ProviderOpenAI:
		return NewOpenAIModel(c), nil
	case config.ProviderGemini:
		return NewGeminiModel(ctx, c)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
}

func newArkModel(ctx context.Context, c config.AIConfig) (model.BaseChatModel, error) {
	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: float32Ptr(c.Temperature),
		TopP:        float32Ptr(c.TopP),
	}

	return ark.NewChatModel(ctx, cfg)
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
