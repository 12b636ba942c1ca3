package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voice-tavern/backend/internal/config"
)

// OpenAIModel adapts the OpenAI chat completions API to eino's BaseChatModel.
type OpenAIModel struct {
	client    *openai.Client
	model     string
	maxTokens *int
	temp      *float32
	topP      *float32
}

// NewOpenAIModel 创建 OpenAI 后端。
func NewOpenAIModel(c config.AIConfig) *OpenAIModel {
	clientCfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientCfg.BaseURL = c.BaseURL
	}

	name := c.Model
	if name == "" {
		name = openai.GPT3Dot5Turbo
	}
	return &OpenAIModel{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     name,
		maxTokens: c.MaxTokens,
		temp:      float32Ptr(c.Temperature),
		topP:      float32Ptr(c.TopP),
	}
}

// Generate 实现 model.BaseChatModel。
func (m *OpenAIModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.model,
		MaxTokens:   m.maxTokens,
		Temperature: m.temp,
		TopP:        m.topP,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Messages: make([]openai.ChatCompletionMessage, 0, len(input)),
	}
	if options.Model != nil {
		req.Model = *options.Model
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	for _, msg := range input {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai api error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in openai response", ErrBackendMalformed)
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream 以单块流的形式返回 Generate 的结果。
func (m *OpenAIModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func openAIRole(role schema.RoleType) string {
	switch role {
	case schema.System:
		return openai.ChatMessageRoleSystem
	case schema.Assistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
