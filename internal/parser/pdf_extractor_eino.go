package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"smarthire-ats/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ErrEmptyPDF 简历文件为空或未提取到任何文本
var ErrEmptyPDF = errors.New("PDF中没有可提取的文本")

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser  einoParser.Parser
	timeout time.Duration
	logger  zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志
func WithEinoLogger(l zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = l
	}
}

// WithEinoTimeout 单次解析超时
func WithEinoTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithDocumentParser 替换底层文档解析器
func WithDocumentParser(p einoParser.Parser) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		if p != nil {
			e.parser = p
		}
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器，不按页面分割
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 整个PDF作为单个文档
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
		logger:  logger.Component("pdf"),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// ExtractText 实现 processor.PDFExtractor，空文件或空文本返回 ErrEmptyPDF
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPDF
	}
	text, err := e.ExtractTextFromReader(ctx, bytes.NewReader(data), "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyPDF
	}
	return text, nil
}

type parseResult struct {
	docs []*schema.Document
	err  error
}

// ExtractTextFromReader 从 io.Reader 中提取文本。
// 底层解析器不检查 ctx，因此在独立 goroutine 中解析，超时后直接返回；解析 goroutine 结束后自行退出
func (e *EinoPDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- parseResult{err: fmt.Errorf("PDF解析异常: %v", r)}
			}
		}()
		docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
		done <- parseResult{docs: docs, err: err}
	}()

	var res parseResult
	select {
	case res = <-done:
	case <-ctx.Done():
		e.logger.Warn().Err(ctx.Err()).Dur("took", time.Since(startTime)).Msg("PDF解析超时")
		return "", fmt.Errorf("eino PDF parser 未在时限内完成: %w", ctx.Err())
	}

	docs, err := res.docs, res.err
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Warn().Err(err).Dur("took", duration).Msg("PDF解析失败")
		return "", fmt.Errorf("eino PDF parser failed: %w", err)
	}
	if len(docs) == 0 {
		return "", ErrEmptyPDF
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var sb strings.Builder
	for i, doc := range docs {
		sb.WriteString(doc.Content)
		if i < len(docs)-1 {
			sb.WriteString("\n\n")
		}
	}

	e.logger.Debug().Int("chars", sb.Len()).Int("docs", len(docs)).Dur("took", duration).Msg("PDF提取完成")
	return sb.String(), nil
}
