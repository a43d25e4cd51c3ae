package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingFileName 文档元数据缺少 file_name
var ErrMissingFileName = errors.New("document metadata is missing file_name")

// 常用元数据键
const (
	MetaFileName      = "file_name"
	MetaFileType      = "file_type"
	MetaCandidateName = "candidate_name"
	MetaSection       = "section"
	MetaChunkType     = "chunk_type"
	MetaResumeTag     = "resume"
	MetaDocID         = "doc_id"
	MetaIngestedAt    = "ingested_at"
	MetaSkills        = "skills"
	MetaEducation     = "education"
	MetaExperience    = "experience_years"
)

// 分块类型
const (
	ChunkTypeSectionPart     = "section_part"
	ChunkTypeSectionComplete = "section_complete"
	ChunkTypeWhole           = "document"
)

// Metadata 文档的键值元数据
type Metadata map[string]any

// Clone 返回浅拷贝，生产者修改元数据前必须先拷贝
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String 读取字符串值，非字符串按 fmt 格式化
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Document 一段带元数据的文本，可以是整份文件也可以是分块
type Document struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// FileName 返回来源文件名
func (d Document) FileName() string {
	return d.Metadata.String(MetaFileName)
}

// Validate 检查必需的元数据
func (d Document) Validate() error {
	if strings.TrimSpace(d.FileName()) == "" {
		return ErrMissingFileName
	}
	return nil
}

// IsResume 判断文档是否按简历处理
func (d Document) IsResume(resumeTypes []string) bool {
	if _, ok := d.Metadata[MetaResumeTag]; ok {
		return true
	}
	ft := strings.ToLower(d.Metadata.String(MetaFileType))
	for _, t := range resumeTypes {
		if ft == strings.ToLower(t) {
			return true
		}
	}
	return false
}

// RetrievedChunk 检索结果中的一个分块
type RetrievedChunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// IndexInfo 向量索引的描述信息
type IndexInfo struct {
	IndexID        string `json:"index_id"`
	CreatedAt      string `json:"created_at"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
}
