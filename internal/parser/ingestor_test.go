package parser

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/types"
)

type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, r io.Reader, fileName string) ([]types.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func writeFiles(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		paths = append(paths, p)
	}
	return dir, paths
}

func TestCandidateNameFromFile(t *testing.T) {
	assert.Equal(t, "Joao Da Silva", CandidateNameFromFile("joao_da-silva.pdf"))
	assert.Equal(t, "Érica Nunes", CandidateNameFromFile("/tmp/ÉRICA_NUNES.docx"))
	assert.Equal(t, "", CandidateNameFromFile("___.txt"))
}

func TestIngestMixedBatch(t *testing.T) {
	dir := t.TempDir()
	files := []struct{ name, content string }{
		{"maria_souza.txt", "Maria Souza\nDesenvolvedora Go"},
		{"notas.md", "# Vaga\nDetalhes"},
		{"foto.jpg", "binary"},
		{"quebrado.json", "{"},
	}
	var paths []string
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		require.NoError(t, os.WriteFile(p, []byte(f.content), 0o644))
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(dir, "ausente.txt"))

	ingestor, err := NewIngestor(context.Background())
	require.NoError(t, err)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ingestor.now = func() time.Time { return fixed }

	docs, err := ingestor.Ingest(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "maria_souza.txt", docs[0].FileName())
	assert.Equal(t, "text", docs[0].Metadata[types.MetaFileType])
	assert.Equal(t, "Maria Souza", docs[0].Metadata[types.MetaCandidateName])
	assert.Equal(t, "doc_0000", docs[0].Metadata[types.MetaDocID])
	assert.Equal(t, "2026-01-02T03:04:05Z", docs[0].Metadata[types.MetaIngestedAt])

	assert.Equal(t, "markdown", docs[1].Metadata[types.MetaFileType])
	assert.Equal(t, "doc_0001", docs[1].Metadata[types.MetaDocID])
}

func TestIngestImagesNeedTika(t *testing.T) {
	ingestor, err := NewIngestor(context.Background())
	require.NoError(t, err)
	assert.False(t, ingestor.Supports("scan.png"))

	withTika, err := NewIngestor(context.Background(), WithTika("http://localhost:9998", time.Second, nil))
	require.NoError(t, err)
	assert.True(t, withTika.Supports("scan.PNG"))
	assert.True(t, withTika.Supports("cv.pdf"))
}

func TestIngestExtractorNameWins(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{"lista.csv": "nome,cargo\nPaula Reis,PM\n"})

	ingestor, err := NewIngestor(context.Background())
	require.NoError(t, err)
	docs, err := ingestor.Ingest(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Paula Reis", docs[0].Metadata[types.MetaCandidateName])
	assert.Equal(t, "lista.csv", docs[0].FileName())
}

func TestIngestCancellation(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{"a.slow": "x"})

	ingestor, err := NewIngestor(context.Background(), WithExtractor(".SLOW", blockingExtractor{}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	docs, err := ingestor.Ingest(ctx, paths)
	assert.Nil(t, docs)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
