package parser

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckParser 模拟不检查 ctx 的解析器，直到 release 关闭才返回
type stuckParser struct{ release chan struct{} }

func (p stuckParser) Parse(context.Context, io.Reader, ...einoParser.Option) ([]*schema.Document, error) {
	<-p.release
	return []*schema.Document{{Content: "late"}}, nil
}

type panicParser struct{}

func (panicParser) Parse(context.Context, io.Reader, ...einoParser.Option) ([]*schema.Document, error) {
	panic("malformed xref table")
}

type staticParser struct{ docs []*schema.Document }

func (p staticParser) Parse(context.Context, io.Reader, ...einoParser.Option) ([]*schema.Document, error) {
	return p.docs, nil
}

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx, WithEinoTimeout(10*time.Second))
	require.NoError(t, err)
	require.NotNil(t, extractor.parser)
	assert.Equal(t, 10*time.Second, extractor.timeout)
}

func TestExtractTextEmptyInput(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)

	_, err = extractor.ExtractText(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyPDF)
}

func TestExtractTextInvalidPDF(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)

	_, err = extractor.ExtractText(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

// TestExtractTextFromTestdata testdata 下有样例简历时才运行
func TestExtractTextFromTestdata(t *testing.T) {
	matches, _ := filepath.Glob(filepath.Join("testdata", "*.pdf"))
	if len(matches) == 0 {
		t.Skip("testdata 中没有PDF样例")
	}
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)

	text, err := extractor.ExtractText(context.Background(), data)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestExtractTextReturnsOnTimeoutWhenParserHangs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	extractor, err := NewEinoPDFTextExtractor(context.Background(),
		WithDocumentParser(stuckParser{release: release}),
		WithEinoTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	start := time.Now()
	_, err = extractor.ExtractText(context.Background(), []byte("%PDF-1.4 BT /F1 12 Tf ( Tj ET"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExtractTextHonoursCallerDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithDocumentParser(stuckParser{release: release}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = extractor.ExtractText(ctx, []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractTextRecoversParserPanic(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithDocumentParser(panicParser{}))
	require.NoError(t, err)

	_, err = extractor.ExtractText(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed xref table")
}

func TestExtractTextJoinsDocuments(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithDocumentParser(staticParser{docs: []*schema.Document{
		{Content: "Jane Doe"}, {Content: "Go developer"},
	}}))
	require.NoError(t, err)

	text, err := extractor.ExtractText(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\n\nGo developer", text)

	extractor, err = NewEinoPDFTextExtractor(context.Background(), WithDocumentParser(staticParser{}))
	require.NoError(t, err)
	_, err = extractor.ExtractText(context.Background(), []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, ErrEmptyPDF)
}
