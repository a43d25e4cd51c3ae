package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"adequa-rag/internal/processor"
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index resume files",
	Long:  "Reads, validates and chunks the given resume files and builds a new vector index from them. Prints the upload result as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

var indexUserID string

func init() {
	indexCmd.Flags().StringVarP(&indexUserID, "user", "u", "cli", "Owner of the uploaded resumes")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	services, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()
	if services.Upload == nil {
		return fmt.Errorf("上传服务不可用: %w", services.UploadErr)
	}

	result, err := uploadPaths(cmd.Context(), services.Upload, indexUserID, args)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// uploadPaths 打开文件后一次性上传；文件在返回前全部关闭
func uploadPaths(ctx context.Context, uploader *processor.UploadService, userID string, paths []string) (*processor.UploadResult, error) {
	files := make([]processor.UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("打开文件 %s 失败: %w", p, err)
		}
		files = append(files, processor.UploadFile{Name: filepath.Base(p), Content: f})
	}
	defer closeFiles(files)
	return uploader.UploadResumes(ctx, userID, files)
}

func closeFiles(files []processor.UploadFile) {
	for _, f := range files {
		if c, ok := f.Content.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
