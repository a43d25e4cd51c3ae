package types

// MatchStatus 候选人与岗位地点的匹配状态
type MatchStatus string

const (
	MatchRemote           MatchStatus = "REMOTE"
	MatchLocation         MatchStatus = "LOCATION_MATCH"
	MatchWillRelocate     MatchStatus = "WILL_RELOCATE"
	MatchDifferent        MatchStatus = "DIFFERENT_LOCATIONS"
	MatchNoSpecificJob    MatchStatus = "NO_SPECIFIC_LOCATION"
	MatchCandidateUnknown MatchStatus = "CANDIDATE_LOCATION_UNKNOWN"
)

// LocationAnalysis 地点分析结论
type LocationAnalysis struct {
	HasLocationRequirement bool        `json:"has_location_requirement"`
	JobLocation            *string     `json:"job_location"`
	CandidateLocation      *string     `json:"candidate_location"`
	IsLocationMatch        bool        `json:"is_location_match"`
	WillingToRelocate      bool        `json:"willing_to_relocate"`
	MatchStatus            MatchStatus `json:"match_status"`
}

// RemoteVerdict 宽松的默认结论，分析失败时也使用它
func RemoteVerdict() LocationAnalysis {
	return LocationAnalysis{
		HasLocationRequirement: false,
		IsLocationMatch:        true,
		WillingToRelocate:      true,
		MatchStatus:            MatchRemote,
	}
}

// Tier 排名分组
type Tier string

const (
	TierAdequate       Tier = "ADEQUATE"
	TierBelowThreshold Tier = "BELOW_THRESHOLD"
	TierDisqualified   Tier = "DISQUALIFIED"
)

// CandidateAnalysis 单个候选人的评分结果
type CandidateAnalysis struct {
	FileName         string            `json:"file_name"`
	CandidateName    string            `json:"candidate_name"`
	Score            int               `json:"score"`
	Strengths        []string          `json:"strengths"`
	Weaknesses       []string          `json:"weaknesses"`
	Justification    string            `json:"justification"`
	ImprovementTips  []string          `json:"improvement_tips,omitempty"`
	LocationAnalysis *LocationAnalysis `json:"location_analysis,omitempty"`
	Tier             Tier              `json:"tier,omitempty"`
}

// RankingResult 一次排名请求的完整响应
type RankingResult struct {
	RunID           string              `json:"run_id,omitempty"`
	IndexID         string              `json:"index_id,omitempty"`
	Query           string              `json:"query"`
	TotalCandidates int                 `json:"total_candidates"`
	BestCandidate   *CandidateAnalysis  `json:"best_candidate"`
	Ranking         []CandidateAnalysis `json:"ranking"`
	DriftDetected   bool                `json:"drift_detected"`
	Summary         string              `json:"summary,omitempty"`
}
