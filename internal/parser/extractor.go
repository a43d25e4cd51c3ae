package parser

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"adequa-rag/internal/types"
)

// TextExtractor 把一个文件的内容转成一个或多个文档
// 返回的文档只需要填 Text 和提取器特有的元数据，通用元数据由 Ingestor 补齐
type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error)
}

// ErrEmptyContent 文件中没有可用文本
var ErrEmptyContent = errors.New("no extractable text")

// PlainTextExtractor 纯文本与 markdown
type PlainTextExtractor struct {
	FileType string
}

// Extract 实现 TextExtractor
func (e PlainTextExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, ErrEmptyContent
	}
	return []types.Document{{Text: text, Metadata: types.Metadata{types.MetaFileType: e.FileType}}}, nil
}

// JSONExtractor 顶层数组的每一项生成一个文档，对象生成一个文档
type JSONExtractor struct{}

// Extract 实现 TextExtractor
func (JSONExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	var payload any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}

	items, ok := payload.([]any)
	if !ok {
		items = []any{payload}
	}

	docs := make([]types.Document, 0, len(items))
	for i, item := range items {
		pretty, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s item %d: %w", fileName, i, err)
		}
		md := types.Metadata{types.MetaFileType: "json"}
		if len(items) > 1 {
			md["record_index"] = i
		}
		if name := nameField(item); name != "" {
			md[types.MetaCandidateName] = name
		}
		docs = append(docs, types.Document{Text: string(pretty), Metadata: md})
	}
	if len(docs) == 0 {
		return nil, ErrEmptyContent
	}
	return docs, nil
}

// nameField 结构化记录里的姓名字段
func nameField(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"nome", "name", "candidato", "candidate_name"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// CSVExtractor 每个数据行生成一个文档，内容为以表头为键的 JSON 对象
type CSVExtractor struct{}

// Extract 实现 TextExtractor
func (CSVExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", fileName, err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyContent
	}

	header := rows[0]
	docs := make([]types.Document, 0, len(rows)-1)
	for i, row := range rows[1:] {
		record := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(row) {
				record[strings.TrimSpace(col)] = row[j]
			}
		}
		text, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode csv row %d: %w", i+1, err)
		}
		md := types.Metadata{types.MetaFileType: "csv", "record_index": i}
		generic := make(map[string]any, len(record))
		for k, v := range record {
			generic[k] = v
		}
		if name := nameField(generic); name != "" {
			md[types.MetaCandidateName] = name
		}
		docs = append(docs, types.Document{Text: string(text), Metadata: md})
	}
	return docs, nil
}

// HTMLExtractor 用 goquery 取可见文本，块级元素之间保留换行
type HTMLExtractor struct{}

var htmlBlockSelector = "h1, h2, h3, h4, h5, h6, p, li, td, th, dt, dd, pre, blockquote"

// Extract 实现 TextExtractor
func (HTMLExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", fileName, err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()

	var lines []string
	doc.Find(htmlBlockSelector).Each(func(_ int, s *goquery.Selection) {
		// 嵌套的块级元素只取最内层
		if s.Find(htmlBlockSelector).Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		if text := strings.Join(strings.Fields(doc.Find("body").Text()), " "); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyContent
	}

	md := types.Metadata{types.MetaFileType: "html"}
	if title != "" {
		md["title"] = title
	}
	return []types.Document{{Text: strings.Join(lines, "\n"), Metadata: md}}, nil
}
