package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smarthire-ats/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentGenerator genai.Models 的最小子集，便于测试替换
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiChatModel 把 Gemini 包装成 eino BaseChatModel
type GeminiChatModel struct {
	models      contentGenerator
	modelName   string
	temperature *float32
	jsonMode    bool
	logger      zerolog.Logger
}

// GeminiOption Gemini 模型选项
type GeminiOption func(*GeminiChatModel)

// WithGeminiTemperature 默认采样温度
func WithGeminiTemperature(t float32) GeminiOption {
	return func(m *GeminiChatModel) {
		m.temperature = &t
	}
}

// WithGeminiJSONMode 要求返回 application/json
func WithGeminiJSONMode() GeminiOption {
	return func(m *GeminiChatModel) {
		m.jsonMode = true
	}
}

// NewGeminiChatModel 创建 Gemini API 后端的聊天模型
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string, opts ...GeminiOption) (*GeminiChatModel, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key 不能为空")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 genai 客户端失败: %w", err)
	}
	return newGeminiChatModel(client.Models, modelName, opts...), nil
}

func newGeminiChatModel(models contentGenerator, modelName string, opts ...GeminiOption) *GeminiChatModel {
	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultGeminiModel
	}
	m := &GeminiChatModel{
		models:    models,
		modelName: modelName,
		logger:    logger.Component("gemini"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate 实现 model.BaseChatModel。system 消息合并为 SystemInstruction。
func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	opts := model.GetCommonOptions(&model.Options{
		Model:       &g.modelName,
		Temperature: g.temperature,
	}, options...)

	cfg := &genai.GenerateContentConfig{
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	if opts.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*opts.MaxTokens)
	}
	if len(opts.Stop) > 0 {
		cfg.StopSequences = opts.Stop
	}
	if g.jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	var (
		system   []string
		contents []*genai.Content
	)
	for _, msg := range messages {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("没有可发送的消息")
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}

	modelName := g.modelName
	if opts.Model != nil && *opts.Model != "" {
		modelName = *opts.Model
	}

	resp, err := g.models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, errors.New("gemini 返回空响应")
	}
	g.logger.Debug().Str("model", modelName).Int("chars", len(text)).Msg("Gemini 调用完成")
	return &schema.Message{Role: schema.Assistant, Content: text}, nil
}

// responseText 拼接所有候选中的文本片段
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// Stream 未实现
func (g *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("GeminiChatModel 不支持 Stream")
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)
