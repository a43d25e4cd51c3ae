package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/types"
)

// stubEmbedder 按句子内容返回预设向量
type stubEmbedder struct {
	vectorFor func(text string) []float64
	err       error
	calls     int
}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = s.vectorFor(t)
	}
	return out, nil
}

func resumeDoc(text string) types.Document {
	return types.Document{
		Text: text,
		Metadata: types.Metadata{
			types.MetaFileName:      "joao_silva.pdf",
			types.MetaFileType:      "pdf",
			types.MetaCandidateName: "Joao Silva",
		},
	}
}

func TestNewSmartChunkerRequiresEmbedder(t *testing.T) {
	_, err := NewSmartChunker(WithStrategy(ChunkStrategySemantic))
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewSmartChunker(WithStrategy(ChunkStrategyFixed))
	assert.NoError(t, err)

	_, err = NewSmartChunker(WithStrategy(ChunkStrategyFixed), WithChunkWindow(10, 10))
	assert.Error(t, err)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Olá mundo", CleanText("Olá 🚀 mundo  ✅"))
	assert.Equal(t, "a\n\nb", CleanText("a\r\n\r\n\r\n  \nb"))
	assert.Equal(t, "", CleanText(" 😀 "))
}

func TestFixedWindowSplit(t *testing.T) {
	text := "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10"
	chunks := FixedWindowSplit(text, 4, 1)
	require.Len(t, chunks, 3)
	assert.Equal(t, "w1 w2 w3 w4", chunks[0])
	assert.Equal(t, "w4 w5 w6 w7", chunks[1])
	assert.Equal(t, "w7 w8 w9 w10", chunks[2])

	assert.Nil(t, FixedWindowSplit("   ", 4, 1))
	// 保留原文换行
	assert.Equal(t, []string{"a\nb"}, FixedWindowSplit("a\nb", 10, 2))
}

func TestChunkResumeSections(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed))
	require.NoError(t, err)

	text := "João Silva\nSão Paulo, SP\n\nEXPERIÊNCIA\nDesenvolvedor Go na ACME.\n\nFORMAÇÃO\nCiência da Computação - USP"
	chunks, err := chunker.Chunk(context.Background(), []types.Document{resumeDoc(text)})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	sections := []string{}
	for _, c := range chunks {
		sections = append(sections, c.Metadata.String(types.MetaSection))
		assert.Equal(t, types.ChunkTypeSectionComplete, c.Metadata[types.MetaChunkType])
		assert.Equal(t, "joao_silva.pdf", c.FileName())
		assert.Equal(t, "Joao Silva", c.Metadata[types.MetaCandidateName])
	}
	assert.Equal(t, []string{"GENERAL", "EXPERIENCE", "EDUCATION"}, sections)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "EXPERIÊNCIA"))
}

func TestChunkLargeSectionIsSplit(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed), WithChunkWindow(5, 1))
	require.NoError(t, err)

	text := "SKILLS\n" + strings.Repeat("golang kubernetes ", 10)
	chunks, err := chunker.Chunk(context.Background(), []types.Document{resumeDoc(text)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, types.ChunkTypeSectionPart, c.Metadata[types.MetaChunkType])
		assert.Equal(t, "SKILLS", c.Metadata[types.MetaSection])
	}
}

func TestChunkNonResumeDocument(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed), WithChunkWindow(3, 0))
	require.NoError(t, err)

	doc := types.Document{
		Text:     "EXPERIENCE\num dois três quatro",
		Metadata: types.Metadata{types.MetaFileName: "notes.txt", types.MetaFileType: "txt"},
	}
	chunks, err := chunker.Chunk(context.Background(), []types.Document{doc})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, types.ChunkTypeWhole, c.Metadata[types.MetaChunkType])
		_, hasSection := c.Metadata[types.MetaSection]
		assert.False(t, hasSection)
	}
	// 来源文档的元数据不被修改
	_, touched := doc.Metadata[types.MetaChunkType]
	assert.False(t, touched)
}

func TestChunkResumeTagWithoutHeaders(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed))
	require.NoError(t, err)

	doc := types.Document{
		Text:     "Maria Souza, analista de dados com 5 anos de experiência em Python.",
		Metadata: types.Metadata{types.MetaFileName: "maria.txt", types.MetaResumeTag: true},
	}
	chunks, err := chunker.Chunk(context.Background(), []types.Document{doc})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkTypeWhole, chunks[0].Metadata[types.MetaChunkType])
}

func TestChunkMissingFileName(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed))
	require.NoError(t, err)

	_, err = chunker.Chunk(context.Background(), []types.Document{{Text: "x", Metadata: types.Metadata{}}})
	assert.ErrorIs(t, err, types.ErrMissingFileName)
}

func TestChunkSkipsEmptyDocuments(t *testing.T) {
	chunker, err := NewSmartChunker(WithStrategy(ChunkStrategyFixed))
	require.NoError(t, err)

	chunks, err := chunker.Chunk(context.Background(), []types.Document{resumeDoc("🚀  ✅")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSemanticSplitBreaksOnTopicShift(t *testing.T) {
	emb := &stubEmbedder{vectorFor: func(text string) []float64 {
		if strings.Contains(text, "culinária") {
			return []float64{0, 1}
		}
		return []float64{1, 0}
	}}
	chunker, err := NewSmartChunker(WithEmbedder(emb))
	require.NoError(t, err)
	// bufferSize=0 让每个句子单独向量化
	chunker.bufferSize = 0

	text := "Go é rápido. Go tem goroutines. Gosto de culinária. A culinária mineira é ótima."
	pieces, err := chunker.semanticSplit(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Go é rápido. Go tem goroutines.",
		"Gosto de culinária. A culinária mineira é ótima.",
	}, pieces)
}

func TestSemanticSplitFallsBackToFixedWindow(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	chunker, err := NewSmartChunker(WithEmbedder(emb), WithChunkWindow(2, 0))
	require.NoError(t, err)

	doc := types.Document{
		Text:     "Primeira frase aqui. Segunda frase aqui.",
		Metadata: types.Metadata{types.MetaFileName: "a.md", types.MetaFileType: "md"},
	}
	chunks, err := chunker.Chunk(context.Background(), []types.Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Len(t, chunks, 3)
}

func TestChunkHonoursCancellation(t *testing.T) {
	chunker, err := NewSmartChunker(WithEmbedder(NewHashEmbedder(32)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chunker.Chunk(ctx, []types.Document{resumeDoc("a. b. c.")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 2.5, Percentile([]float64{4, 1, 3, 2}, 50), 1e-9)
	assert.InDelta(t, 4, Percentile([]float64{4, 1, 3, 2}, 100), 1e-9)
	assert.InDelta(t, 7, Percentile([]float64{7}, 95), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 95))
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"Olá.", "Tudo bem?", "Sim!", "Linha nova"},
		SplitSentences("Olá. Tudo bem? Sim!\nLinha nova"))
}
