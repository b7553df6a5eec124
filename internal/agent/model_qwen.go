package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smarthire-ats/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	// OpenAI-compatible API endpoint for DashScope
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// AliyunQwenChatModel 通过 DashScope OpenAI 兼容接口调用通义千问
type AliyunQwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature *float32
	jsonMode    bool
	httpClient  *http.Client
	logger      zerolog.Logger
}

// QwenOption 千问模型选项
type QwenOption func(*AliyunQwenChatModel)

// WithQwenTemperature 默认采样温度，调用时传入的 model.WithTemperature 优先
func WithQwenTemperature(t float32) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.temperature = &t
	}
}

// WithQwenJSONMode 要求模型只输出 JSON 对象
func WithQwenJSONMode() QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.jsonMode = true
	}
}

// WithQwenHTTPClient 替换 HTTP 客户端
func WithQwenHTTPClient(c *http.Client) QwenOption {
	return func(m *AliyunQwenChatModel) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string, opts ...QwenOption) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}
	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	m := &AliyunQwenChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Component("qwen"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Info().Str("url", url).Str("model", mn).Msg("使用阿里云通义千问 LLM 客户端")
	return m, nil
}

// --- OpenAI Compatible Request/Response Structures ---

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatCompletionRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    *float32              `json:"temperature,omitempty"`
	TopP           *float32              `json:"top_p,omitempty"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAICompletionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIUsage        `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate 实现 model.BaseChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	opts := model.GetCommonOptions(&model.Options{
		Model:       &aq.modelName,
		Temperature: aq.temperature,
	}, options...)

	reqPayload := openAIChatCompletionRequest{
		Model:       aq.modelName,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	}
	if opts.Model != nil && *opts.Model != "" {
		reqPayload.Model = *opts.Model
	}
	if aq.jsonMode {
		reqPayload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		reqPayload.Messages = append(reqPayload.Messages, openAIMessage{Role: string(msg.Role), Content: msg.Content})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if openAIResp.Error != nil && openAIResp.Error.Message != "" {
		return nil, fmt.Errorf("API 返回错误: %s (%s)", openAIResp.Error.Message, openAIResp.Error.Code)
	}
	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	aq.logger.Debug().
		Str("model", openAIResp.Model).
		Int("prompt_tokens", openAIResp.Usage.PromptTokens).
		Int("completion_tokens", openAIResp.Usage.CompletionTokens).
		Dur("took", time.Since(start)).
		Msg("千问调用完成")

	choice := openAIResp.Choices[0].Message
	content := ""
	if choice.Content != nil {
		content = *choice.Content
	}
	return &schema.Message{Role: schema.Assistant, Content: content}, nil
}

// Stream 流式输出不在评分链路中使用
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel 不支持 Stream")
}

var _ model.BaseChatModel = (*AliyunQwenChatModel)(nil)
