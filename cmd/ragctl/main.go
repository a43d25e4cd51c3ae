// ragctl 是简历索引与候选人排名的命令行工具
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"adequa-rag/internal/app"
	"adequa-rag/internal/config"
	"adequa-rag/internal/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Resume indexing and candidate ranking",
	Long:          "ragctl indexes resume files into a vector index and ranks the indexed candidates against a job description.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signalContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并初始化日志；日志写到标准错误，标准输出只留给命令结果
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if _, err := logger.Init(logger.Config{Level: logLevel, Format: "pretty", File: cfg.Logger.File, Output: os.Stderr}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadApp 组装服务；调用方负责 Close
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
