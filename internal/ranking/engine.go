package ranking

import (
	"io"
	"log"
	"sort"
	"strings"

	"adequa-rag/internal/types"
)

// 地点覆盖写入的弱项
const (
	weaknessIncompatible = "LOCALIZAÇÃO INCOMPATÍVEL - Candidato mora em local diferente da vaga e não demonstrou disposição para mudança"
	weaknessUnknown      = "LOCALIZAÇÃO DESCONHECIDA - Não foi possível determinar a localização do candidato"
)

// locationPriority 同分时的地点排序权重，越大越靠前
var locationPriority = map[types.MatchStatus]int{
	types.MatchLocation:         5,
	types.MatchRemote:           4,
	types.MatchWillRelocate:     3,
	types.MatchNoSpecificJob:    2,
	types.MatchCandidateUnknown: 1,
	types.MatchDifferent:        0,
}

func priorityOf(a types.CandidateAnalysis) int {
	if a.LocationAnalysis == nil {
		return locationPriority[types.MatchRemote]
	}
	p, ok := locationPriority[a.LocationAnalysis.MatchStatus]
	if !ok {
		return locationPriority[types.MatchRemote]
	}
	return p
}

// ApplyLocationOverride 地点不兼容或未知（岗位有地点要求）时分数归零并标记 DISQUALIFIED
// 返回是否发生了覆盖
func ApplyLocationOverride(a *types.CandidateAnalysis) bool {
	loc := a.LocationAnalysis
	if loc == nil {
		return false
	}
	var weakness string
	switch {
	case loc.MatchStatus == types.MatchDifferent && !loc.WillingToRelocate:
		weakness = weaknessIncompatible
	case loc.MatchStatus == types.MatchCandidateUnknown && loc.HasLocationRequirement:
		weakness = weaknessUnknown
	default:
		return false
	}
	a.Score = 0
	a.Weaknesses = append(a.Weaknesses, weakness)
	a.Tier = types.TierDisqualified
	return true
}

// Outcome 一次排名的结果
type Outcome struct {
	Ranked        []types.CandidateAnalysis
	DriftDetected bool
	ScoreRange    int
}

// Engine 排序、分组和漂移检测
type Engine struct {
	adequacyThreshold int
	driftRange        int
	logger            *log.Logger
}

// EngineOption 是 Engine 的配置选项
type EngineOption func(*Engine)

// WithAdequacyThreshold 判定 ADEQUATE 的最低分
func WithAdequacyThreshold(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.adequacyThreshold = n
		}
	}
}

// WithDriftRange 分数极差超过该值时记为漂移
func WithDriftRange(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.driftRange = n
		}
	}
}

// WithEngineLogger 设置日志记录器
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine 创建排名引擎，默认阈值 60，漂移极差 80
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		adequacyThreshold: 60,
		driftRange:        80,
		logger:            log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank 应用地点覆盖后排序；不修改传入的切片
func (e *Engine) Rank(analyses []types.CandidateAnalysis) Outcome {
	ranked := make([]types.CandidateAnalysis, len(analyses))
	copy(ranked, analyses)

	for i := range ranked {
		ranked[i].Weaknesses = append([]string(nil), ranked[i].Weaknesses...)
		ranked[i].Tier = ""
		ApplyLocationOverride(&ranked[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := priorityOf(a), priorityOf(b); pa != pb {
			return pa > pb
		}
		if len(a.Strengths) != len(b.Strengths) {
			return len(a.Strengths) > len(b.Strengths)
		}
		if na, nb := strings.ToLower(a.CandidateName), strings.ToLower(b.CandidateName); na != nb {
			return na < nb
		}
		return a.FileName < b.FileName
	})

	for i := range ranked {
		switch {
		case ranked[i].Tier == types.TierDisqualified:
		case ranked[i].Score >= e.adequacyThreshold:
			ranked[i].Tier = types.TierAdequate
		default:
			ranked[i].Tier = types.TierBelowThreshold
		}
	}

	out := Outcome{Ranked: ranked}
	if len(ranked) > 1 {
		out.ScoreRange = ranked[0].Score - ranked[len(ranked)-1].Score
		if out.ScoreRange > e.driftRange {
			out.DriftDetected = true
			e.logger.Printf("WARN: 分数极差 %d 超过 %d，评分可能不一致", out.ScoreRange, e.driftRange)
		}
	}
	return out
}
