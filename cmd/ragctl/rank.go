package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"adequa-rag/internal/export"
	"adequa-rag/internal/ranking"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank indexed candidates against a job description",
	Long:  "Scores every candidate in an index against a job description and prints the ranking summary, or the full result with --json.",
	Args:  cobra.NoArgs,
	RunE:  runRank,
}

var (
	rankIndexID string
	rankJD      string
	rankJDFile  string
	rankXLSX    string
	rankJSON    bool
)

func init() {
	rankCmd.Flags().StringVarP(&rankIndexID, "index", "i", "", "Index id to rank (required)")
	rankCmd.Flags().StringVar(&rankJD, "jd", "", "Job description text")
	rankCmd.Flags().StringVar(&rankJDFile, "jd-file", "", "Path to a file containing the job description")
	rankCmd.Flags().StringVarP(&rankXLSX, "xlsx", "o", "", "Also write the ranking to this Excel file")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "Print the full result as JSON")

	if err := rankCmd.MarkFlagRequired("index"); err != nil {
		panic(fmt.Sprintf("failed to mark index flag as required: %v", err))
	}
	rankCmd.MarkFlagsMutuallyExclusive("jd", "jd-file")
	rankCmd.MarkFlagsOneRequired("jd", "jd-file")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, _ []string) error {
	jd, err := readJobDescription(rankJD, rankJDFile)
	if err != nil {
		return err
	}

	services, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()
	if services.Ranking == nil {
		return fmt.Errorf("排名服务不可用: %w", services.RankingErr)
	}

	result, err := services.Ranking.RankCandidates(cmd.Context(), jd, rankIndexID)
	if err != nil {
		return err
	}

	if rankXLSX != "" {
		path, err := export.SaveRanking(rankXLSX, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Excel 已写入 %s\n", path)
	}

	if rankJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}
	summary := result.Summary
	if summary == "" {
		summary = ranking.Summary(*result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

func readJobDescription(text, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("读取岗位描述文件失败: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("岗位描述为空")
	}
	return text, nil
}
