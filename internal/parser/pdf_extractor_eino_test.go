package parser

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/types"
)

func TestNewEinoPDFExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser, "PDF提取器内部的parser不应为nil")
	require.NotNil(t, extractor.logger, "PDF提取器应该有默认的logger")

	customLogger := log.New(os.Stdout, "[测试PDF提取器] ", log.LstdFlags)
	withLogger, err := NewEinoPDFExtractor(ctx, WithEinoLogger(customLogger), WithEinoTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, customLogger, withLogger.logger, "应该使用提供的自定义logger")
	assert.Equal(t, time.Second, withLogger.timeout)
}

func TestEinoPDFExtractFromFixture(t *testing.T) {
	candidates := []string{"testdata/resume.pdf", "../../testdata/resume.pdf"}
	var path string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		t.Skip("找不到测试PDF文件，跳过测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	extractor, err := NewEinoPDFExtractor(ctx)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	docs, err := extractor.Extract(ctx, f, "resume.pdf")
	require.NoError(t, err, "PDF提取不应返回错误")
	require.Len(t, docs, 1)
	assert.Equal(t, "pdf", docs[0].Metadata[types.MetaFileType])
	assert.NotEmpty(t, strings.TrimSpace(docs[0].Text))
}

func TestEinoPDFExtractRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	extractor, err := NewEinoPDFExtractor(ctx)
	require.NoError(t, err)

	_, err = extractor.Extract(ctx, strings.NewReader("not a pdf"), "broken.pdf")
	assert.Error(t, err)
}
