package ranking

import (
	"strings"

	"adequa-rag/internal/types"
)

// UnknownCandidate 分块缺少文件名时使用的分组键
const UnknownCandidate = "Desconhecido"

// CandidateGroup 同一个源文件的检索分块
type CandidateGroup struct {
	FileName string
	Chunks   []types.RetrievedChunk
}

// Text 按检索顺序拼接分块文本
func (g CandidateGroup) Text() string {
	parts := make([]string, 0, len(g.Chunks))
	for _, c := range g.Chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// CandidateGroups 按首次出现顺序排列
type CandidateGroups []CandidateGroup

// AsMap 文件名到分块列表
func (gs CandidateGroups) AsMap() map[string][]types.RetrievedChunk {
	m := make(map[string][]types.RetrievedChunk, len(gs))
	for _, g := range gs {
		m[g.FileName] = g.Chunks
	}
	return m
}

// GroupByCandidate 按 file_name 分组检索结果，组内保持原顺序
func GroupByCandidate(chunks []types.RetrievedChunk) CandidateGroups {
	pos := map[string]int{}
	var groups CandidateGroups
	for _, c := range chunks {
		key := strings.TrimSpace(c.Metadata.String(types.MetaFileName))
		if key == "" {
			key = UnknownCandidate
		}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, CandidateGroup{FileName: key})
		}
		groups[i].Chunks = append(groups[i].Chunks, c)
	}
	return groups
}
