package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/config"
	"adequa-rag/internal/processor"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	cfg.Embedding.Provider = config.ProviderHash
	cfg.Embedding.Dimensions = 64
	cfg.Chunker.Strategy = "fixed"
	cfg.Chunker.ChunkSize = 40
	cfg.Chunker.ChunkOverlap = 5
	cfg.SQLiteBlob.Path = filepath.Join(t.TempDir(), "blobs.db")
	return cfg
}

func TestNewWithoutLLM(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Storage.RemoteBlobs)
	assert.Nil(t, a.Storage.MySQL)
	require.NotNil(t, a.Indexer)

	assert.Nil(t, a.Ranking)
	var cfgErr *processor.ConfigurationError
	require.True(t, errors.As(a.RankingErr, &cfgErr))
	assert.Equal(t, "llm", cfgErr.Component)

	require.NoError(t, a.UploadErr)
	require.NotNil(t, a.Upload)

	result, err := a.Upload.UploadResumes(context.Background(), "rh-1", []processor.UploadFile{
		{Name: "ana_lima.txt", Content: strings.NewReader("Ana Lima\nDesenvolvedora Go em São Paulo, cinco anos de experiência com Kubernetes.")},
	})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)

	// 没有 MySQL 时索引列表来自归档存储
	summaries, err := a.Upload.ListIndexes(context.Background(), "rh-1")
	require.NoError(t, err)
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.IndexID)
	}
	assert.Contains(t, ids, result.IndexID)
}

func TestNewWithLLM(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.LLM.APIKey = "test-key"
	cfg.Upload.ValidateResumes = true

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.RankingErr)
	assert.NotNil(t, a.Ranking)
	require.NoError(t, a.UploadErr)
	assert.NotNil(t, a.Upload)
}

func TestNewWithoutEmbedding(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Embedding.Provider = config.ProviderOpenAI
	cfg.Embedding.APIKey = ""

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Indexer)
	assert.Error(t, a.RankingErr)
	assert.Error(t, a.UploadErr)
}
