package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"adequa-rag/internal/api/handler"
	"adequa-rag/internal/api/router"
	"adequa-rag/internal/app"
	"adequa-rag/internal/config"
	"adequa-rag/internal/logger"
	"adequa-rag/internal/outbox"
	"adequa-rag/internal/tracing"
)

var (
	version     = "1.0.0"      //nolint:gochecknoglobals
	serviceName = "adequa-rag" //nolint:gochecknoglobals
)

func main() {
	_ = godotenv.Load()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logCloser, err := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化日志失败")
	}
	defer logCloser.Close()
	hlog.SetLogger(hertzadapter.From(logger.Logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingName := cfg.Tracing.ServiceName
	if tracingName == "" {
		tracingName = serviceName
	}
	shutdownTracer, err := tracing.InitTracer(ctx, tracing.ProviderConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: tracingName,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	services, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化服务失败")
	}
	defer services.Close()

	startBackground(ctx, services)

	h := router.NewServer(cfg.Server.Address)
	router.RegisterRoutes(h, handler.New(handlerOptions(services)...), cfg.Server.APIKeys)
	logger.Info().Str("address", cfg.Server.Address).Str("version", version).Msg("HTTP 服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("关闭链路追踪失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// handlerOptions 服务为 nil 时不传入，避免接口持有 nil 指针
func handlerOptions(services *app.App) []handler.Option {
	opts := []handler.Option{
		handler.WithVersion(version),
		handler.WithLogger(logger.Std("[API] ")),
	}
	if services.Ranking != nil {
		opts = append(opts, handler.WithRanker(services.Ranking, nil))
	} else {
		opts = append(opts, handler.WithRanker(nil, services.RankingErr))
	}
	if services.Upload != nil {
		opts = append(opts, handler.WithUploader(services.Upload, nil))
	} else {
		opts = append(opts, handler.WithUploader(nil, services.UploadErr))
	}
	return opts
}

// startBackground 启动 outbox 中继和索引预热消费者；需要 MySQL 与 RabbitMQ 同时可用
func startBackground(ctx context.Context, services *app.App) {
	store := services.Storage
	if store.MySQL == nil || store.RabbitMQ == nil {
		logger.Info().Msg("未配置 MySQL 或 RabbitMQ，跳过消息中继")
		return
	}

	relay := outbox.NewMessageRelay(store.MySQL.DB(), store.RabbitMQ, logger.Std("[MessageRelay] "))
	go relay.Run(ctx)
	logger.Info().Msg("消息中继服务已启动")

	if services.Indexer == nil {
		return
	}
	if err := store.RabbitMQ.SetupIndexTopology(); err != nil {
		logger.Warn().Err(err).Msg("声明索引消息拓扑失败，预热消费者未启动")
		return
	}
	consumer := outbox.NewWarmupConsumer(services.Indexer, logger.Std("[IndexWarmup] "))
	go func() {
		if err := consumer.Run(ctx, store.RabbitMQ); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("索引预热消费者退出")
		}
	}()
}
