package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"adequa-rag/internal/types"
)

// DocxExtractor 读取 word/document.xml 中的段落文本
// 段落之间换行，w:tab 转为制表符，w:br 转为换行
type DocxExtractor struct {
	// MaxSize 读入内存的上限，0 表示不限制
	MaxSize int64
}

// Extract 实现 TextExtractor
func (e DocxExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	src := r
	if e.MaxSize > 0 {
		src = io.LimitReader(r, e.MaxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	if e.MaxSize > 0 && int64(len(data)) > e.MaxSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", fileName, e.MaxSize)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", fileName, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx %s has no word/document.xml", fileName)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	text, err := docxParagraphs(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("parse docx %s: %w", fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}
	return []types.Document{{Text: text, Metadata: types.Metadata{types.MetaFileType: "docx"}}}, nil
}

func docxParagraphs(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(para.String()); line != "" {
					out.WriteString(line)
					out.WriteByte('\n')
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
