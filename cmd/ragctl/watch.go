package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"adequa-rag/internal/logger"
	"adequa-rag/internal/processor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index resumes as they appear in a directory",
	Long:  "Watches a directory and indexes new or rewritten resume files. Files arriving close together are uploaded as one batch, producing one index per batch.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var (
	watchDir    string
	watchUserID string
	watchQuiet  time.Duration
)

func init() {
	watchCmd.Flags().StringVarP(&watchDir, "dir", "d", "", "Directory to watch (required)")
	watchCmd.Flags().StringVarP(&watchUserID, "user", "u", "cli", "Owner of the uploaded resumes")
	watchCmd.Flags().DurationVar(&watchQuiet, "quiet", 2*time.Second, "Wait this long without new events before uploading a batch")
	if err := watchCmd.MarkFlagRequired("dir"); err != nil {
		panic(fmt.Sprintf("failed to mark dir flag as required: %v", err))
	}
	rootCmd.AddCommand(watchCmd)
}

// batcher 收集一段静默期内的文件变化
type batcher struct {
	supports func(name string) bool
	pending  map[string]struct{}
}

func newBatcher(supports func(string) bool) *batcher {
	return &batcher{supports: supports, pending: map[string]struct{}{}}
}

// handleEvent 记录创建或写入的受支持文件，返回是否有新文件入队
func (b *batcher) handleEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") || !b.supports(name) {
		return false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return false
	}
	b.pending[ev.Name] = struct{}{}
	return true
}

// drain 取出并清空当前批次，按路径排序
func (b *batcher) drain() []string {
	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	b.pending = map[string]struct{}{}
	return paths
}

func runWatch(cmd *cobra.Command, _ []string) error {
	info, err := os.Stat(watchDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s 不是目录", watchDir)
	}

	services, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()
	if services.Upload == nil {
		return fmt.Errorf("上传服务不可用: %w", services.UploadErr)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("监听目录 %s 失败: %w", watchDir, err)
	}

	ctx := cmd.Context()
	fmt.Fprintf(cmd.ErrOrStderr(), "监听 %s，按 Ctrl+C 退出\n", watchDir)
	return watchLoop(ctx, cmd, watcher, services.Upload)
}

func watchLoop(ctx context.Context, cmd *cobra.Command, watcher *fsnotify.Watcher, uploader *processor.UploadService) error {
	b := newBatcher(uploader.Supports)
	timer := time.NewTimer(watchQuiet)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if b.handleEvent(ev) {
				timer.Reset(watchQuiet)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("文件监听错误")
		case <-timer.C:
			paths := b.drain()
			if len(paths) == 0 {
				continue
			}
			result, err := uploadPaths(ctx, uploader, watchUserID, paths)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error().Err(err).Int("files", len(paths)).Msg("上传失败")
				continue
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		}
	}
}
