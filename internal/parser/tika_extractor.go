package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"adequa-rag/internal/types"
)

// TikaExtractor 通过 Apache Tika 服务器做 OCR，用于图片简历
type TikaExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// OCR 语言，Tesseract 语法
	ocrLanguage string
	logger      *log.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(logger *log.Logger) TikaOption {
	return func(e *TikaExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		e.Client.Timeout = timeout
	}
}

// WithOCRLanguage 设置 OCR 语言
func WithOCRLanguage(lang string) TikaOption {
	return func(e *TikaExtractor) { e.ocrLanguage = lang }
}

// NewTikaExtractor 创建 Tika 提取器
func NewTikaExtractor(serverURL string, options ...TikaOption) *TikaExtractor {
	extractor := &TikaExtractor{
		ServerURL:   strings.TrimRight(serverURL, "/"),
		Client:      &http.Client{Timeout: 60 * time.Second},
		ocrLanguage: "por+eng",
		logger:      log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Extract 实现 TextExtractor
func (e *TikaExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/tika", r)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := imageContentTypes[ext]; ok {
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Tika-Resource-Name", fileName)
	if e.ocrLanguage != "" {
		req.Header.Set("X-Tika-OCRLanguage", e.ocrLanguage)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取Tika响应失败: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, ErrEmptyContent
	}

	e.logger.Printf("OCR完成: %s 共 %d 个字符 (用时 %.2f秒)", fileName, len(text), time.Since(startTime).Seconds())
	fileType := strings.TrimPrefix(ext, ".")
	return []types.Document{{
		Text:     text,
		Metadata: types.Metadata{types.MetaFileType: fileType, "ocr": true},
	}}, nil
}
