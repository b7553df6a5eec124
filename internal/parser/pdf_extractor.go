package parser

import (
	"context"
	"fmt"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
)

// TextExtractor 从简历原文件中提取纯文本
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// NewPDFExtractorFromConfig 按 ats.pdf_extractor 选择提取后端
func NewPDFExtractorFromConfig(ctx context.Context, ats config.ATSConfig) (TextExtractor, error) {
	timeout := config.GetDuration(ats.ExternalTimeout, 0)
	switch ats.PDFExtractor {
	case "", "eino":
		ex, err := NewEinoPDFTextExtractor(ctx, WithEinoLogger(logger.Component("pdf_eino")), WithEinoTimeout(timeout))
		if err != nil {
			return nil, err
		}
		return ex, nil
	case "tika":
		ex, err := NewTikaPDFExtractor(ats.TikaServerURL, WithTikaTimeout(timeout), WithTikaLogger(logger.Component("pdf_tika")))
		if err != nil {
			return nil, err
		}
		return ex, nil
	default:
		return nil, fmt.Errorf("不支持的PDF提取后端: %q", ats.PDFExtractor)
	}
}
