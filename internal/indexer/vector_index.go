package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"adequa-rag/internal/parser"
	"adequa-rag/internal/types"
)

// 索引目录中的文件
const (
	docstoreFile  = "docstore.json"
	vectorsFile   = "vectors.json"
	indexMetaFile = "index_meta.json"
)

// storedChunk docstore.json 中的一条记录
type storedChunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata types.Metadata `json:"metadata"`
}

// VectorIndex 内存中的向量索引，构建完成后只读
type VectorIndex struct {
	Info    types.IndexInfo
	chunks  []storedChunk
	vectors [][]float64
}

// Len 分块数量
func (v *VectorIndex) Len() int { return len(v.chunks) }

// Search 余弦相似度 top-k，分数降序，同分按插入顺序
func (v *VectorIndex) Search(query []float64, topK int) []types.RetrievedChunk {
	if topK <= 0 || len(v.chunks) == 0 {
		return []types.RetrievedChunk{}
	}

	type scored struct {
		pos   int
		score float64
	}
	all := make([]scored, len(v.vectors))
	for i, vec := range v.vectors {
		all[i] = scored{pos: i, score: parser.CosineSimilarity(query, vec)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })

	if topK > len(all) {
		topK = len(all)
	}
	out := make([]types.RetrievedChunk, topK)
	for i := 0; i < topK; i++ {
		c := v.chunks[all[i].pos]
		out[i] = types.RetrievedChunk{
			ID:       c.ID,
			Text:     c.Text,
			Metadata: c.Metadata.Clone(),
			Score:    all[i].score,
		}
	}
	return out
}

// writeDir 把索引写成三个 JSON 文件
func (v *VectorIndex) writeDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name  string
		value any
	}{
		{docstoreFile, v.chunks},
		{vectorsFile, v.vectors},
		{indexMetaFile, v.Info},
	}
	for _, f := range files {
		data, err := json.Marshal(f.value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// readDir 从目录读取索引
func readDir(dir string) (*VectorIndex, error) {
	v := &VectorIndex{}
	files := []struct {
		name   string
		target any
	}{
		{docstoreFile, &v.chunks},
		{vectorsFile, &v.vectors},
		{indexMetaFile, &v.Info},
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.name, err)
		}
		if err := json.Unmarshal(data, f.target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	if len(v.chunks) != len(v.vectors) {
		return nil, fmt.Errorf("corrupt index: %d chunks but %d vectors", len(v.chunks), len(v.vectors))
	}
	return v, nil
}
