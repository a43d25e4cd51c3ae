package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"adequa-rag/internal/types"
)

// 工作表名称
const (
	SheetSummary  = "Resumo"
	SheetRanking  = "Ranking"
	SheetAnalysis = "Análise"
)

var rankingHeaders = []string{"Posição", "Candidato", "Arquivo", "Nota", "Classificação", "Localização", "Pontos fortes", "Pontos fracos"}

// 分组底色
var tierColors = map[types.Tier]string{
	types.TierAdequate:       "C6EFCE",
	types.TierBelowThreshold: "FFEB9C",
	types.TierDisqualified:   "FFC7CE",
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteRanking 把排名结果写成 xlsx
func WriteRanking(w io.Writer, result *types.RankingResult) error {
	if result == nil {
		return fmt.Errorf("ranking result is nil")
	}
	f, err := build(result)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// SaveRanking 写入文件，路径缺少 .xlsx 后缀时自动补上；返回实际路径
func SaveRanking(path string, result *types.RankingResult) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)
	if result == nil {
		return "", fmt.Errorf("ranking result is nil")
	}
	f, err := build(result)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func build(result *types.RankingResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetRanking, SheetAnalysis} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	steps := []struct {
		name string
		fn   func(*excelize.File, *types.RankingResult) error
	}{
		{SheetSummary, writeSummary},
		{SheetRanking, writeRanking},
		{SheetAnalysis, writeAnalysis},
	}
	for _, s := range steps {
		if err := s.fn(f, result); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}
	return f, nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// setRow 从第一列开始写一整行
func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		if err := f.SetCellValue(sheet, cell(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, r *types.RankingResult) error {
	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 26)
	_ = f.SetColWidth(SheetSummary, "B", "B", 90)

	best := "Nenhum candidato adequado"
	if r.BestCandidate != nil {
		best = fmt.Sprintf("%s (%s) - %d/100", r.BestCandidate.CandidateName, r.BestCandidate.FileName, r.BestCandidate.Score)
	}
	adequate, below, disqualified := countTiers(r.Ranking)
	rows := [][2]any{
		{"Vaga", r.Query},
		{"Índice", r.IndexID},
		{"Execução", r.RunID},
		{"Total de candidatos", r.TotalCandidates},
		{"Recomendado", best},
		{"Adequados", adequate},
		{"Abaixo da nota mínima", below},
		{"Descartados", disqualified},
		{"Divergência de notas", yesNo(r.DriftDetected)},
		{"Resumo", r.Summary},
	}
	for i, kv := range rows {
		row := i + 1
		if err := setRow(f, SheetSummary, row, kv[0], kv[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetSummary, cell(1, row), cell(1, row), label); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetSummary, cell(2, row), cell(2, row), wrap); err != nil {
			return err
		}
	}
	return nil
}

func writeRanking(f *excelize.File, r *types.RankingResult) error {
	hs, err := headerStyle(f)
	if err != nil {
		return err
	}
	tierStyles := map[types.Tier]int{}
	for tier, color := range tierColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
			Border:    thinBorder,
		})
		if err != nil {
			return err
		}
		tierStyles[tier] = id
	}

	widths := []float64{9, 28, 28, 8, 18, 24, 50, 50}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetRanking, col, col, w)
	}
	for i, h := range rankingHeaders {
		if err := f.SetCellValue(SheetRanking, cell(i+1, 1), h); err != nil {
			return err
		}
	}
	last := cell(len(rankingHeaders), 1)
	if err := f.SetCellStyle(SheetRanking, "A1", last, hs); err != nil {
		return err
	}

	for i, a := range r.Ranking {
		row := i + 2
		if err := setRow(f, SheetRanking, row,
			i+1, a.CandidateName, a.FileName, a.Score, string(a.Tier), locationText(a.LocationAnalysis),
			strings.Join(a.Strengths, "; "), strings.Join(a.Weaknesses, "; "),
		); err != nil {
			return err
		}
		if style, ok := tierStyles[a.Tier]; ok {
			if err := f.SetCellStyle(SheetRanking, cell(1, row), cell(len(rankingHeaders), row), style); err != nil {
				return err
			}
		}
	}

	if len(r.Ranking) > 0 {
		ref := fmt.Sprintf("A1:%s", cell(len(rankingHeaders), len(r.Ranking)+1))
		if err := f.AutoFilter(SheetRanking, ref, []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}
	return f.SetPanes(SheetRanking, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeAnalysis(f *excelize.File, r *types.RankingResult) error {
	hs, err := headerStyle(f)
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}
	_ = f.SetColWidth(SheetAnalysis, "A", "A", 9)
	_ = f.SetColWidth(SheetAnalysis, "B", "B", 28)
	_ = f.SetColWidth(SheetAnalysis, "C", "D", 70)

	if err := setRow(f, SheetAnalysis, 1, "Posição", "Candidato", "Justificativa", "Dicas de melhoria"); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetAnalysis, "A1", "D1", hs); err != nil {
		return err
	}
	for i, a := range r.Ranking {
		row := i + 2
		if err := setRow(f, SheetAnalysis, row, i+1, a.CandidateName, a.Justification, strings.Join(a.ImprovementTips, "\n")); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetAnalysis, cell(1, row), cell(4, row), wrap); err != nil {
			return err
		}
	}
	return nil
}

func countTiers(ranking []types.CandidateAnalysis) (adequate, below, disqualified int) {
	for _, a := range ranking {
		switch a.Tier {
		case types.TierAdequate:
			adequate++
		case types.TierDisqualified:
			disqualified++
		default:
			below++
		}
	}
	return
}

func locationText(l *types.LocationAnalysis) string {
	if l == nil {
		return string(types.MatchRemote)
	}
	if l.CandidateLocation != nil && *l.CandidateLocation != "" {
		return fmt.Sprintf("%s (%s)", l.MatchStatus, *l.CandidateLocation)
	}
	return string(l.MatchStatus)
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
