package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"adequa-rag/internal/types"
)

func sampleResult() *types.RankingResult {
	city := "Recife"
	best := types.CandidateAnalysis{
		FileName: "ana.pdf", CandidateName: "Ana Lima", Score: 88, Tier: types.TierAdequate,
		Strengths: []string{"Go", "Kubernetes"}, Weaknesses: []string{},
		Justification: "Boa aderência", ImprovementTips: []string{"Certificação CKA"},
	}
	return &types.RankingResult{
		RunID:           "run-1",
		IndexID:         "idx_1",
		Query:           "Dev Go",
		TotalCandidates: 3,
		BestCandidate:   &best,
		Ranking: []types.CandidateAnalysis{
			best,
			{FileName: "bruno.pdf", CandidateName: "Bruno", Score: 40, Tier: types.TierBelowThreshold},
			{FileName: "carla.pdf", CandidateName: "Carla", Score: 0, Tier: types.TierDisqualified,
				Weaknesses:       []string{"INCOMPATIBILIDADE DE LOCALIZAÇÃO"},
				LocationAnalysis: &types.LocationAnalysis{MatchStatus: types.MatchDifferent, CandidateLocation: &city}},
		},
		DriftDetected: true,
		Summary:       "CANDIDATO RECOMENDADO: Ana Lima (ana.pdf)",
	}
}

func TestWriteRanking(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRanking(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetRanking, SheetAnalysis}, f.GetSheetList())

	rows, err := f.GetRows(SheetRanking)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, rankingHeaders, rows[0])
	assert.Equal(t, []string{"1", "Ana Lima", "ana.pdf", "88", "ADEQUATE", "REMOTE", "Go; Kubernetes"}, rows[1])
	assert.Equal(t, "DIFFERENT_LOCATIONS (Recife)", rows[3][5])
	assert.Equal(t, "INCOMPATIBILIDADE DE LOCALIZAÇÃO", rows[3][7])

	best, err := f.GetCellValue(SheetSummary, "B5")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima (ana.pdf) - 88/100", best)
	drift, err := f.GetCellValue(SheetSummary, "B9")
	require.NoError(t, err)
	assert.Equal(t, "Sim", drift)

	tips, err := f.GetCellValue(SheetAnalysis, "D2")
	require.NoError(t, err)
	assert.Equal(t, "Certificação CKA", tips)
}

func TestWriteRankingWithoutCandidates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRanking(&buf, &types.RankingResult{Query: "x", Ranking: []types.CandidateAnalysis{}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	best, err := f.GetCellValue(SheetSummary, "B5")
	require.NoError(t, err)
	assert.Equal(t, "Nenhum candidato adequado", best)

	assert.Error(t, WriteRanking(&buf, nil))
}

func TestSaveRankingAddsExtension(t *testing.T) {
	path, err := SaveRanking(filepath.Join(t.TempDir(), "relatorio"), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 3)
}
