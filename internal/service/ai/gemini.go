package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/voice-tavern/backend/internal/config"
)

// GeminiModel adapts Google's GenerateContent API to eino's BaseChatModel.
// System turns become the system instruction; assistant turns use the "model" role.
type GeminiModel struct {
	client    *genai.Client
	model     string
	maxTokens *int
	temp      *float32
	topP      *float32
}

// NewGeminiModel 创建 Gemini 后端。
func NewGeminiModel(ctx context.Context, c config.AIConfig) (*GeminiModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiModel{
		client:    client,
		model:     c.Model,
		maxTokens: c.MaxTokens,
		temp:      float32Ptr(c.Temperature),
		topP:      float32Ptr(c.TopP),
	}, nil
}

// Generate 实现 model.BaseChatModel。
func (m *GeminiModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.model,
		MaxTokens:   m.maxTokens,
		Temperature: m.temp,
		TopP:        m.topP,
	}, opts...)

	contents, system := geminiContents(input)

	cfg := &genai.GenerateContentConfig{
		Temperature: options.Temperature,
		TopP:        options.TopP,
	}
	if options.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*options.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, *options.Model, contents, cfg)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: gemini returned no text", ErrBackendMalformed)
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 以单块流的形式返回 Generate 的结果。
func (m *GeminiModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func geminiContents(input []*schema.Message) ([]*genai.Content, string) {
	var (
		system   []string
		contents = make([]*genai.Content, 0, len(input))
	)
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}
