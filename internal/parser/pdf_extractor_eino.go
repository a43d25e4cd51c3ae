package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"adequa-rag/internal/types"
)

// EinoPDFExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  *log.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEinoTimeout 单个文件的解析超时
func WithEinoTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFExtractor) { e.timeout = d }
}

// NewEinoPDFExtractor 初始化 Eino PDF 文本提取器
// 不按页面分割，整份 PDF 作为一个文档
func NewEinoPDFExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFExtractor{
		parser:  p,
		timeout: 30 * time.Second,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// Extract 实现 TextExtractor
func (e *EinoPDFExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	startTime := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	docs, err := e.parser.Parse(ctx, r,
		einoParser.WithURI(fileName),
		einoParser.WithExtraMeta(map[string]any{"extraction_time": startTime.Format(time.RFC3339)}),
	)
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF解析失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return nil, fmt.Errorf("eino PDF parser failed for %s: %w", fileName, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("eino PDF parser returned no documents for %s", fileName)
	}

	// 解析器偶尔按页返回多个文档，合并为一份
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if c := strings.TrimSpace(d.Content); c != "" {
			parts = append(parts, c)
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		return nil, ErrEmptyContent
	}

	e.logger.Printf("PDF提取完成: %s 共 %d 个字符 (用时 %.2f秒)", fileName, len(text), duration.Seconds())
	return []types.Document{{
		Text: text,
		Metadata: types.Metadata{
			types.MetaFileType:       "pdf",
			"processing_duration_ms": duration.Milliseconds(),
		},
	}}, nil
}
