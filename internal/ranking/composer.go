package ranking

import (
	"fmt"
	"strings"

	"adequa-rag/internal/types"
)

// Compose 把排名结果整理成响应
func Compose(query string, outcome Outcome) types.RankingResult {
	ranking := outcome.Ranked
	if ranking == nil {
		ranking = []types.CandidateAnalysis{}
	}
	result := types.RankingResult{
		Query:           query,
		TotalCandidates: len(ranking),
		Ranking:         ranking,
		DriftDetected:   outcome.DriftDetected,
	}
	for i := range ranking {
		if ranking[i].Tier == types.TierAdequate {
			best := ranking[i]
			result.BestCandidate = &best
			break
		}
	}
	result.Summary = Summary(result)
	return result
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

// locationNote 推荐候选人的地点说明
func locationNote(loc *types.LocationAnalysis) string {
	note := "LOCALIZAÇÃO: " + string(loc.MatchStatus)
	switch loc.MatchStatus {
	case types.MatchRemote:
		note += " (Vaga remota - compatível)"
	case types.MatchLocation:
		note += fmt.Sprintf(" (Compatível: %s)", orDefault(loc.CandidateLocation, "Não informado"))
	case types.MatchWillRelocate:
		note += fmt.Sprintf(" (Candidato disponível: %s)\nCandidato disposto a mudança", orDefault(loc.CandidateLocation, "Não informado"))
	case types.MatchNoSpecificJob:
		note += " (Vaga sem localização específica)"
	case types.MatchCandidateUnknown:
		note += fmt.Sprintf(" (Vaga: %s | Candidato: localização não informada)", orDefault(loc.JobLocation, "Não especificado"))
	}
	return note
}

var locationTags = map[types.MatchStatus]string{
	types.MatchRemote:           " [REMOTO]",
	types.MatchLocation:         " [Localização compatível]",
	types.MatchWillRelocate:     " [Mudança]",
	types.MatchNoSpecificJob:    " [Sem localização]",
	types.MatchCandidateUnknown: " [Localização desconhecida]",
}

// Summary 生成面向招聘人员的文字摘要
func Summary(r types.RankingResult) string {
	if len(r.Ranking) == 0 {
		return "Nenhum candidato foi encontrado no índice."
	}

	var b strings.Builder
	if best := r.BestCandidate; best != nil {
		fmt.Fprintf(&b, "CANDIDATO RECOMENDADO: %s (%s)\n\nNOTA: %d/100\n", best.CandidateName, best.FileName, best.Score)
		if best.LocationAnalysis != nil {
			b.WriteString(locationNote(best.LocationAnalysis))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\nANÁLISE:\n%s\n", best.Justification)
	} else {
		b.WriteString("Nenhum candidato atingiu a nota mínima para a vaga.\n")
	}

	b.WriteString("\nRANKING COMPLETO:")
	var discarded []types.CandidateAnalysis
	n := 0
	for _, c := range r.Ranking {
		if c.Tier == types.TierDisqualified {
			discarded = append(discarded, c)
			continue
		}
		n++
		tag := ""
		if c.LocationAnalysis != nil {
			tag = locationTags[c.LocationAnalysis.MatchStatus]
		}
		fmt.Fprintf(&b, "\n%d. %s - Nota: %d/100%s", n, c.CandidateName, c.Score, tag)
	}

	if len(discarded) > 0 {
		b.WriteString("\n\nCANDIDATOS DESCARTADOS:")
		for _, c := range discarded {
			reason := "Localização incompatível"
			if len(c.Weaknesses) > 0 {
				reason = c.Weaknesses[len(c.Weaknesses)-1]
			}
			fmt.Fprintf(&b, "\n- %s - MOTIVO: %s", c.CandidateName, reason)
		}
	}
	if r.DriftDetected {
		b.WriteString("\n\nATENÇÃO: grande variação entre as notas, revise a avaliação.")
	}
	return b.String()
}
