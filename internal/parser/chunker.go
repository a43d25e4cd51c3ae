package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"adequa-rag/internal/types"
)

// ChunkStrategy 分块策略
type ChunkStrategy string

const (
	// ChunkStrategySemantic 按相邻句子的向量距离切分
	ChunkStrategySemantic ChunkStrategy = "semantic"
	// ChunkStrategyFixed 固定窗口切分
	ChunkStrategyFixed ChunkStrategy = "fixed"
)

// ErrEmbedderRequired 语义分块没有配置 Embedder
var ErrEmbedderRequired = errors.New("semantic chunking requires an embedder")

// 简历章节标题关键词，按顺序匹配，先匹配到的为准
var defaultSectionKeywords = []struct {
	Keyword string
	Section string
}{
	{"PROFESSIONAL SUMMARY", "PROFESSIONAL SUMMARY"},
	{"WORK HISTORY", "WORK HISTORY"},
	{"EDUCATION", "EDUCATION"},
	{"EXPERIENCE", "EXPERIENCE"},
	{"SKILLS", "SKILLS"},
	{"CERTIFICATIONS", "CERTIFICATIONS"},
	{"PROJECTS", "PROJECTS"},
	{"RESUMO PROFISSIONAL", "PROFESSIONAL SUMMARY"},
	{"FORMAÇÃO", "EDUCATION"},
	{"FORMACAO", "EDUCATION"},
	{"EXPERIÊNCIA", "EXPERIENCE"},
	{"EXPERIENCIA", "EXPERIENCE"},
	{"HABILIDADES", "SKILLS"},
	{"COMPETÊNCIAS", "SKILLS"},
	{"COMPETENCIAS", "SKILLS"},
	{"CERTIFICAÇÕES", "CERTIFICATIONS"},
	{"CERTIFICACOES", "CERTIFICATIONS"},
	{"PROJETOS", "PROJECTS"},
}

const (
	generalSection      = "GENERAL"
	maxHeaderLineLength = 50
)

// 需要去掉的表情与装饰符号区间
var emojiRe = regexp.MustCompile("[" +
	"\U0001F600-\U0001F64F" +
	"\U0001F300-\U0001F5FF" +
	"\U0001F680-\U0001F6FF" +
	"\U0001F1E0-\U0001F1FF" +
	"✀-➿" +
	"☀-⛿" +
	"\U0001F900-\U0001F9FF" +
	"️" +
	"]+")

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
	tokenRe       = regexp.MustCompile(`\S+`)
)

// CleanText 去掉表情符号并压缩空白
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = emojiRe.ReplaceAllString(text, "")
	text = inlineSpaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SmartChunker 简历感知的分块器：简历先按章节切，其余文档直接切
type SmartChunker struct {
	strategy    ChunkStrategy
	embedder    embedding.Embedder
	chunkSize   int
	overlap     int
	percentile  float64
	bufferSize  int
	resumeTypes []string
	logger      *log.Logger
}

// ChunkerOption 是分块器的配置选项
type ChunkerOption func(*SmartChunker)

// WithStrategy 设置分块策略
func WithStrategy(s ChunkStrategy) ChunkerOption {
	return func(c *SmartChunker) { c.strategy = s }
}

// WithEmbedder 设置语义分块使用的 Embedder
func WithEmbedder(e embedding.Embedder) ChunkerOption {
	return func(c *SmartChunker) { c.embedder = e }
}

// WithChunkWindow 设置固定窗口大小和重叠，单位为空白分隔的词
func WithChunkWindow(size, overlap int) ChunkerOption {
	return func(c *SmartChunker) {
		if size > 0 {
			c.chunkSize = size
		}
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithBreakpointPercentile 设置语义断点的百分位
func WithBreakpointPercentile(p float64) ChunkerOption {
	return func(c *SmartChunker) {
		if p > 0 && p <= 100 {
			c.percentile = p
		}
	}
}

// WithResumeFileTypes 设置按简历处理的文件类型
func WithResumeFileTypes(fileTypes []string) ChunkerOption {
	return func(c *SmartChunker) {
		if len(fileTypes) > 0 {
			c.resumeTypes = fileTypes
		}
	}
}

// WithChunkerLogger 设置日志记录器
func WithChunkerLogger(l *log.Logger) ChunkerOption {
	return func(c *SmartChunker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewSmartChunker 创建分块器；语义策略缺少 Embedder 时返回 ErrEmbedderRequired
func NewSmartChunker(opts ...ChunkerOption) (*SmartChunker, error) {
	c := &SmartChunker{
		strategy:    ChunkStrategySemantic,
		chunkSize:   512,
		overlap:     50,
		percentile:  95,
		bufferSize:  1,
		resumeTypes: []string{"pdf", "docx"},
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch c.strategy {
	case ChunkStrategySemantic:
		if c.embedder == nil {
			return nil, ErrEmbedderRequired
		}
	case ChunkStrategyFixed:
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", c.strategy)
	}
	if c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.overlap, c.chunkSize)
	}
	return c, nil
}

// Chunk 把文档切成分块；每个分块继承来源文档的全部元数据
func (c *SmartChunker) Chunk(ctx context.Context, docs []types.Document) ([]types.Document, error) {
	var out []types.Document
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		text := CleanText(doc.Text)
		if text == "" {
			c.logger.Printf("WARN: 文档 %s 清洗后为空，跳过", doc.FileName())
			continue
		}

		chunks, err := c.chunkDocument(ctx, doc, text)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.FileName(), err)
		}
		out = append(out, chunks...)
	}
	c.logger.Printf("%d 个文档切分为 %d 个分块", len(docs), len(out))
	return out, nil
}

func (c *SmartChunker) chunkDocument(ctx context.Context, doc types.Document, text string) ([]types.Document, error) {
	var out []types.Document
	emit := func(piece, section, chunkType string) {
		md := doc.Metadata.Clone()
		if section != "" {
			md[types.MetaSection] = section
		}
		md[types.MetaChunkType] = chunkType
		md["chunk_index"] = len(out)
		out = append(out, types.Document{Text: piece, Metadata: md})
	}

	if doc.IsResume(c.resumeTypes) {
		if sections := SplitSections(text); len(sections) > 0 {
			limit := c.chunkSize * 4
			for _, sec := range sections {
				if len([]rune(sec.Text)) > limit {
					pieces, err := c.split(ctx, sec.Text)
					if err != nil {
						return nil, err
					}
					for _, p := range pieces {
						emit(p, sec.Name, types.ChunkTypeSectionPart)
					}
					continue
				}
				emit(sec.Text, sec.Name, types.ChunkTypeSectionComplete)
			}
			return out, nil
		}
	}

	pieces, err := c.split(ctx, text)
	if err != nil {
		return nil, err
	}
	for _, p := range pieces {
		emit(p, "", types.ChunkTypeWhole)
	}
	return out, nil
}

func (c *SmartChunker) split(ctx context.Context, text string) ([]string, error) {
	if c.strategy == ChunkStrategyFixed {
		return FixedWindowSplit(text, c.chunkSize, c.overlap), nil
	}
	pieces, err := c.semanticSplit(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 向量化失败时退回固定窗口，整批入库不因此中断
		c.logger.Printf("WARN: 语义分块失败，改用固定窗口: %v", err)
		return FixedWindowSplit(text, c.chunkSize, c.overlap), nil
	}
	return pieces, nil
}

// Section 简历中的一个章节
type Section struct {
	Name string
	Text string
}

// SplitSections 按章节标题切分简历；没有识别到任何标题时返回 nil
// 第一个标题之前的内容归入 GENERAL
func SplitSections(text string) []Section {
	var sections []Section
	current := Section{Name: generalSection}
	var buf []string
	found := false

	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if body != "" {
			current.Text = body
			sections = append(sections, current)
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if name, ok := sectionHeader(line); ok {
			flush()
			found = true
			current = Section{Name: name}
		}
		buf = append(buf, line)
	}
	flush()

	if !found {
		return nil
	}
	return sections
}

func sectionHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len([]rune(trimmed)) >= maxHeaderLineLength {
		return "", false
	}
	upper := strings.ToUpper(trimmed)
	for _, kw := range defaultSectionKeywords {
		if strings.Contains(upper, kw.Keyword) {
			return kw.Section, true
		}
	}
	return "", false
}

// FixedWindowSplit 以空白分隔的词为单位做滑动窗口，保留原文中的换行
func FixedWindowSplit(text string, size, overlap int) []string {
	locs := tokenRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []string
	for start := 0; start < len(locs); start += step {
		end := start + size
		if end > len(locs) {
			end = len(locs)
		}
		out = append(out, text[locs[start][0]:locs[end-1][1]])
		if end == len(locs) {
			break
		}
	}
	return out
}

var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// SplitSentences 按句末标点和换行切句
func SplitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = sentenceEndRe.ReplaceAllString(line, "$1\n")
		for _, s := range strings.Split(line, "\n") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// semanticSplit 每个句子连同前后 bufferSize 个句子一起向量化，
// 相邻句组的余弦距离超过该文档距离分布的指定百分位时断开
func (c *SmartChunker) semanticSplit(ctx context.Context, text string) ([]string, error) {
	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}, nil
	}

	groups := make([]string, len(sentences))
	for i := range sentences {
		lo := i - c.bufferSize
		if lo < 0 {
			lo = 0
		}
		hi := i + c.bufferSize + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		groups[i] = strings.Join(sentences[lo:hi], " ")
	}

	vecs, err := c.embedder.EmbedStrings(ctx, groups)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(groups) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d sentences", len(vecs), len(groups))
	}

	distances := make([]float64, len(vecs)-1)
	for i := 0; i < len(vecs)-1; i++ {
		distances[i] = 1 - CosineSimilarity(vecs[i], vecs[i+1])
	}
	threshold := Percentile(distances, c.percentile)

	var out []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			out = append(out, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	out = append(out, strings.Join(sentences[start:], " "))
	return out, nil
}

// Percentile 线性插值百分位，p 取 0-100
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
