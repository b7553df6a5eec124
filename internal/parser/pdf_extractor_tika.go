package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smarthire-ats/internal/logger"

	"github.com/rs/zerolog"
)

// TikaPDFExtractor 通过 Apache Tika Server 的 PUT /tika 接口提取纯文本
type TikaPDFExtractor struct {
	serverURL          string
	client             *http.Client
	extractAnnotations bool
	logger             zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaPDFExtractor)

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaPDFExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(l zerolog.Logger) TikaOption {
	return func(e *TikaPDFExtractor) {
		e.logger = l
	}
}

// WithTikaTimeout 配置HTTP客户端超时时间
func WithTikaTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaPDFExtractor) {
		if timeout > 0 {
			e.client.Timeout = timeout
		}
	}
}

// WithTikaHTTPClient 替换HTTP客户端
func WithTikaHTTPClient(c *http.Client) TikaOption {
	return func(e *TikaPDFExtractor) {
		if c != nil {
			e.client = c
		}
	}
}

// NewTikaPDFExtractor 创建一个新的Tika PDF解析器，serverURL 例如 http://localhost:9998
func NewTikaPDFExtractor(serverURL string, options ...TikaOption) (*TikaPDFExtractor, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("tika server url 不能为空")
	}
	extractor := &TikaPDFExtractor{
		serverURL:          serverURL,
		client:             &http.Client{Timeout: 60 * time.Second},
		extractAnnotations: true,
		logger:             logger.Component("pdf_tika"),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// ExtractText 实现 processor.PDFExtractor，空文件或空文本返回 ErrEmptyPDF
func (e *TikaPDFExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPDF
	}
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/plain")
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tika服务器返回错误状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}
	text := strings.TrimSpace(string(textBytes))
	if text == "" {
		return "", ErrEmptyPDF
	}

	e.logger.Debug().Int("chars", len(text)).Dur("took", time.Since(startTime)).Msg("Tika PDF文本提取完成")
	return text, nil
}
