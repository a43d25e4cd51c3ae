package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List vector indexes",
	Long:  "Lists the indexes owned by a user. Without a database every index in the store is listed.",
	Args:  cobra.NoArgs,
	RunE:  runIndexes,
}

var (
	indexesUserID string
	indexesJSON   bool
)

func init() {
	indexesCmd.Flags().StringVarP(&indexesUserID, "user", "u", "cli", "Owner of the indexes")
	indexesCmd.Flags().BoolVar(&indexesJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(indexesCmd)
}

func runIndexes(cmd *cobra.Command, _ []string) error {
	services, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()
	if services.Upload == nil {
		return fmt.Errorf("上传服务不可用: %w", services.UploadErr)
	}

	summaries, err := services.Upload.ListIndexes(cmd.Context(), indexesUserID)
	if err != nil {
		return err
	}
	if indexesJSON {
		return printJSON(cmd.OutOrStdout(), summaries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tRESUMES\tCREATED")
	for _, s := range summaries {
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.IndexID, s.ResumeCount, created)
	}
	return tw.Flush()
}
