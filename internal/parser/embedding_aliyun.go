package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// DashScope 兼容接口单次最多接受10条文本
const defaultEmbeddingBatchSize = 10

// AliyunEmbedder 实现 embedding.Embedder 接口 (OpenAI compatible endpoint)
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// AliyunEmbedderOption 向量化选项
type AliyunEmbedderOption func(*AliyunEmbedder)

// WithEmbeddingHTTPClient 替换 HTTP 客户端（测试或自定义超时）
func WithEmbeddingHTTPClient(c *http.Client) AliyunEmbedderOption {
	return func(a *AliyunEmbedder) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithEmbeddingBatchSize 设置单次请求文本数
func WithEmbeddingBatchSize(n int) AliyunEmbedderOption {
	return func(a *AliyunEmbedder) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// NewAliyunEmbedder 创建新的阿里云Embedder
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig, opts ...AliyunEmbedderOption) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	embedder := &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		batchSize:  defaultEmbeddingBatchSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		logger:     logger.Component("aliyun_embedder"),
	}
	for _, opt := range opts {
		opt(embedder)
	}
	return embedder, nil
}

// GetDimensions 返回嵌入器配置的维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// AliyunOpenAIEmbeddingRequest 阿里云Embedding请求结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// AliyunOpenAIEmbeddingResponse 阿里云Embedding响应结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingResponse struct {
	Object string                  `json:"object"`
	Data   []AliyunOpenAIDataEntry `json:"data"`
	Model  string                  `json:"model"`
	Usage  AliyunOpenAIUsage       `json:"usage"`
	ID     string                  `json:"id,omitempty"`
	Error  *AliyunOpenAIError      `json:"error,omitempty"`
}

// AliyunOpenAIDataEntry part of the response
type AliyunOpenAIDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// AliyunOpenAIUsage part of the response
type AliyunOpenAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AliyunOpenAIError for API-level errors returned with 200 OK
type AliyunOpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本转换为向量，输出顺序与输入一致
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	a.logger.Debug().
		Int("texts", len(texts)).
		Str("model", effectiveModel).
		Int("dimensions", a.dimensions).
		Str("first_text", truncateRunes(texts[0], 100)).
		Msg("开始向量化")

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		end := start + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := a.embedBatch(ctx, effectiveModel, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (a *AliyunEmbedder) embedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	reqBody := AliyunOpenAIEmbeddingRequest{
		Input:          texts,
		Model:          model,
		EncodingFormat: "float",
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var wrapped struct {
			Error *AliyunOpenAIError `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s",
				resp.StatusCode, wrapped.Error.Type, wrapped.Error.Message, wrapped.Error.Code)
		}
		a.logger.Warn().Int("status", resp.StatusCode).Str("body", truncateRunes(string(body), 500)).Msg("向量化接口调用失败")
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, truncateRunes(string(body), 500))
	}

	var parsedResp AliyunOpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s", parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
	}
	if len(parsedResp.Data) != len(texts) {
		return nil, fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(parsedResp.Data), len(texts))
	}

	// 按 index 排序，保证与输入顺序一致
	sort.Slice(parsedResp.Data, func(i, j int) bool {
		return parsedResp.Data[i].Index < parsedResp.Data[j].Index
	})

	embeddings := make([][]float64, len(parsedResp.Data))
	for i, entry := range parsedResp.Data {
		embeddings[i] = entry.Embedding
	}

	a.logger.Debug().
		Int("count", len(embeddings)).
		Str("preview", truncateEmbedding(embeddings[0])).
		Int("prompt_tokens", parsedResp.Usage.PromptTokens).
		Int("total_tokens", parsedResp.Usage.TotalTokens).
		Msg("向量化完成")
	return embeddings, nil
}

// truncateEmbedding 截断嵌入向量的字符串表示形式
func truncateEmbedding(vector []float64) string {
	const maxLen = 6
	const showEachSide = 3

	if len(vector) <= maxLen {
		return fmt.Sprintf("%v", vector)
	}

	var truncated []string
	for i := 0; i < showEachSide; i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	truncated = append(truncated, "...")
	for i := len(vector) - showEachSide; i < len(vector); i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	return fmt.Sprintf("[%s]", strings.Join(truncated, ", "))
}
