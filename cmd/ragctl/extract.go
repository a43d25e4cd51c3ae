package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"adequa-rag/internal/config"
	"adequa-rag/internal/logger"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Show extracted text, metadata and chunks",
	Long:  "Runs the ingestion pipeline on local files without building an index. Useful to check how a resume will be read and chunked.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

var (
	extractMaxLen int
	extractChunks bool
	extractJSON   bool
)

func init() {
	extractCmd.Flags().IntVar(&extractMaxLen, "max-len", 1000, "Characters of text to show per document, -1 for all")
	extractCmd.Flags().BoolVar(&extractChunks, "chunks", false, "Also show fixed-window chunks")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print documents as JSON")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	docs, err := extractDocuments(cmd, cfg, args)
	if err != nil {
		return err
	}

	if extractChunks {
		// 不依赖 embedding 服务，这里固定使用窗口分块
		chunker, err := parser.NewSmartChunker(
			parser.WithStrategy(parser.ChunkStrategyFixed),
			parser.WithChunkWindow(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
			parser.WithResumeFileTypes(cfg.Chunker.ResumeFileTypes),
			parser.WithChunkerLogger(logger.Std("[Chunker] ")),
		)
		if err != nil {
			return err
		}
		if docs, err = chunker.Chunk(cmd.Context(), docs); err != nil {
			return err
		}
	}

	if extractJSON {
		return printJSON(cmd.OutOrStdout(), docs)
	}
	printDocuments(cmd.OutOrStdout(), docs, extractMaxLen)
	return nil
}

func extractDocuments(cmd *cobra.Command, cfg *config.Config, paths []string) ([]types.Document, error) {
	ingestor, err := parser.NewIngestor(cmd.Context(),
		parser.WithTika(cfg.Tika.ServerURL, 0, logger.Std("[Tika] ")),
		parser.WithIngestorLogger(logger.Std("[Ingestor] ")),
	)
	if err != nil {
		return nil, err
	}
	docs, err := ingestor.Ingest(cmd.Context(), paths)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("没有可读取的文件")
	}
	return parser.Transform(docs), nil
}

func printDocuments(w io.Writer, docs []types.Document, maxLen int) {
	for n, d := range docs {
		fmt.Fprintf(w, "===== [%d] %s (%d 字符) =====\n", n, d.FileName(), len([]rune(d.Text)))
		for _, key := range []string{types.MetaCandidateName, types.MetaFileType, types.MetaSection, types.MetaSkills, types.MetaEducation, types.MetaExperience} {
			if v, ok := d.Metadata[key]; ok {
				fmt.Fprintf(w, "%s: %v\n", key, v)
			}
		}
		fmt.Fprintln(w, strings.Repeat("-", 40))
		fmt.Fprintln(w, clip(d.Text, maxLen))
		fmt.Fprintln(w)
	}
}

// clip 按字符截断；maxLen 小于 0 时不截断
func clip(text string, maxLen int) string {
	r := []rune(text)
	if maxLen < 0 || len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}
