package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"adequa-rag/internal/types"
)

// Ingestor 按扩展名分派提取器，把文件读成文档
type Ingestor struct {
	extractors map[string]TextExtractor
	logger     *log.Logger
	now        func() time.Time
}

// IngestorOption 是 Ingestor 的配置选项
type IngestorOption func(*Ingestor)

// WithExtractor 为扩展名（含点，如 ".pdf"）注册提取器，覆盖默认值
func WithExtractor(ext string, e TextExtractor) IngestorOption {
	return func(i *Ingestor) {
		i.extractors[strings.ToLower(ext)] = e
	}
}

// WithTika 为图片启用 OCR；serverURL 为空时不注册
func WithTika(serverURL string, timeout time.Duration, logger *log.Logger) IngestorOption {
	return func(i *Ingestor) {
		if serverURL == "" {
			return
		}
		opts := []TikaOption{WithTikaLogger(logger)}
		if timeout > 0 {
			opts = append(opts, WithTimeout(timeout))
		}
		tika := NewTikaExtractor(serverURL, opts...)
		for _, ext := range []string{".jpg", ".jpeg", ".png"} {
			i.extractors[ext] = tika
		}
	}
}

// WithIngestorLogger 设置日志记录器
func WithIngestorLogger(l *log.Logger) IngestorOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIngestor 创建 Ingestor，注册除 OCR 之外的全部默认提取器
func NewIngestor(ctx context.Context, opts ...IngestorOption) (*Ingestor, error) {
	i := &Ingestor{
		extractors: map[string]TextExtractor{
			".docx":     DocxExtractor{},
			".json":     JSONExtractor{},
			".csv":      CSVExtractor{},
			".md":       PlainTextExtractor{FileType: "markdown"},
			".markdown": PlainTextExtractor{FileType: "markdown"},
			".txt":      PlainTextExtractor{FileType: "text"},
			".html":     HTMLExtractor{},
			".htm":      HTMLExtractor{},
		},
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	if _, ok := i.extractors[".pdf"]; !ok {
		pdfExtractor, err := NewEinoPDFExtractor(ctx, WithEinoLogger(i.logger))
		if err != nil {
			return nil, err
		}
		i.extractors[".pdf"] = pdfExtractor
	}
	return i, nil
}

// Supports 判断文件扩展名是否有对应的提取器
func (i *Ingestor) Supports(fileName string) bool {
	_, ok := i.extractors[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

// Ingest 读取一批文件
// 不支持的扩展名和单个文件的提取失败只记警告；只有 ctx 结束才返回错误
func (i *Ingestor) Ingest(ctx context.Context, paths []string) ([]types.Document, error) {
	var docs []types.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileDocs, err := i.ingestPath(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			i.logger.Printf("WARN: 跳过文件 %s: %v", path, err)
			continue
		}
		docs = append(docs, fileDocs...)
	}

	ingestedAt := i.now().UTC().Format(time.RFC3339)
	for n := range docs {
		docs[n].Metadata[types.MetaDocID] = fmt.Sprintf("doc_%04d", n)
		docs[n].Metadata[types.MetaIngestedAt] = ingestedAt
	}
	i.logger.Printf("读取 %d 个文件，得到 %d 个文档", len(paths), len(docs))
	return docs, nil
}

// errUnsupported 扩展名没有注册提取器
var errUnsupported = errors.New("unsupported file type")

func (i *Ingestor) ingestPath(ctx context.Context, path string) ([]types.Document, error) {
	name := filepath.Base(path)
	if !i.Supports(name) {
		return nil, fmt.Errorf("%w: %s", errUnsupported, filepath.Ext(name))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return i.IngestReader(ctx, name, f)
}

// IngestReader 从 Reader 读取单个文件；fileName 只取基础名
func (i *Ingestor) IngestReader(ctx context.Context, fileName string, r io.Reader) ([]types.Document, error) {
	fileName = filepath.Base(fileName)
	ext := strings.ToLower(filepath.Ext(fileName))
	extractor, ok := i.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupported, ext)
	}

	extracted, err := extractor.Extract(ctx, r, fileName)
	if err != nil {
		return nil, err
	}

	fallbackName := CandidateNameFromFile(fileName)
	out := make([]types.Document, 0, len(extracted))
	for _, d := range extracted {
		md := d.Metadata.Clone()
		md[types.MetaFileName] = fileName
		if md.String(types.MetaFileType) == "" {
			md[types.MetaFileType] = strings.TrimPrefix(ext, ".")
		}
		if md.String(types.MetaCandidateName) == "" {
			md[types.MetaCandidateName] = fallbackName
		}
		out = append(out, types.Document{Text: d.Text, Metadata: md})
	}
	return out, nil
}

// CandidateNameFromFile 文件名去扩展名，_ 和 - 换成空格后每个词首字母大写
func CandidateNameFromFile(fileName string) string {
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	words := strings.Fields(stem)
	for n, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[n] = string(r)
	}
	return strings.Join(words, " ")
}
