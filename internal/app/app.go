// Package app 按配置组装存储、索引、排名和上传服务，供各个二进制共用
package app

import (
	"context"
	"fmt"
	"time"

	"adequa-rag/internal/config"
	"adequa-rag/internal/indexer"
	"adequa-rag/internal/logger"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/processor"
	"adequa-rag/internal/storage"
)

// App 组装好的服务；LLM 或 embedding 未配置时对应服务为 nil，原因记录在 *Err 中
type App struct {
	Config  *config.Config
	Storage *storage.Storage
	Indexer *indexer.Indexer

	Ranking    *processor.RankingService
	RankingErr error
	Upload     *processor.UploadService
	UploadErr  error
}

// New 组装服务；只有对象存储失败才返回错误
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.NewStorage(ctx, cfg, logger.Std("[Storage] "))
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Storage: store}

	embedder, err := processor.NewEmbedder(cfg, logger.Std("[Embedder] "))
	if err != nil {
		a.RankingErr, a.UploadErr = err, err
		logger.Warn().Err(err).Msg("embedding 未配置，排名和上传不可用")
		return a, nil
	}

	indexStore, err := newIndexStore(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.Indexer, err = indexer.New(embedder, indexStore,
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithHandleCache(cfg.Indexer.HandleCache),
		indexer.WithLogger(logger.Std("[Indexer] ")),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	a.Ranking, a.RankingErr = newRankingService(ctx, cfg, a.Indexer, store)
	if a.RankingErr != nil {
		logger.Warn().Err(a.RankingErr).Msg("排名服务不可用")
	}
	a.Upload, a.UploadErr = newUploadService(ctx, cfg, embedder, a.Indexer, store)
	if a.UploadErr != nil {
		logger.Warn().Err(a.UploadErr).Msg("上传服务不可用")
	}
	return a, nil
}

// Close 关闭存储连接
func (a *App) Close() {
	if a.Storage != nil {
		a.Storage.Close()
	}
}

// newIndexStore 有远程对象存储时索引以归档形式保存，否则落本地目录
func newIndexStore(cfg *config.Config, store *storage.Storage) (indexer.IndexStore, error) {
	if store.RemoteBlobs {
		return indexer.NewArchiveStore(store.Blobs, cfg.Indexer.ArchivePrefix, logger.Std("[IndexArchive] ")), nil
	}
	local, err := indexer.NewLocalStore(cfg.Indexer.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("初始化本地索引目录失败: %w", err)
	}
	return local, nil
}

func newRankingService(ctx context.Context, cfg *config.Config, ix *indexer.Indexer, store *storage.Storage) (*processor.RankingService, error) {
	stdLogger := logger.Std("[Ranking] ")
	llm, err := processor.NewChatModel(ctx, cfg, "scorer", stdLogger)
	if err != nil {
		return nil, err
	}
	opts := processor.RankingOptionsFromConfig(cfg, llm, stdLogger)
	if store.Redis != nil {
		opts = append(opts, processor.WithRankingCache(store.Redis, config.GetDuration(cfg.Ranking.CacheTTL, 24*time.Hour)))
	}
	if store.MySQL != nil {
		opts = append(opts, processor.WithRunRepository(store.MySQL))
	}
	return processor.NewRankingService(llm, ix, opts...)
}

func newUploadService(ctx context.Context, cfg *config.Config, embedder parser.Embedder, ix *indexer.Indexer, store *storage.Storage) (*processor.UploadService, error) {
	uploadLogger := logger.Std("[Upload] ")
	ingestor, err := parser.NewIngestor(ctx,
		parser.WithTika(cfg.Tika.ServerURL, time.Duration(cfg.Tika.Timeout)*time.Second, logger.Std("[Tika] ")),
		parser.WithIngestorLogger(logger.Std("[Ingestor] ")),
	)
	if err != nil {
		return nil, err
	}
	chunker, err := processor.NewChunker(cfg, embedder, logger.Std("[Chunker] "))
	if err != nil {
		return nil, &processor.ConfigurationError{Component: "chunker", Err: err}
	}

	opts := []processor.UploadOption{
		processor.WithUploadLogger(uploadLogger),
		processor.WithMaxResumesPerUser(cfg.Upload.MaxResumesPerUser),
		processor.WithMaxFileSize(int64(cfg.Upload.MaxFileSizeMB) << 20),
		processor.WithOriginalsPrefix(cfg.Upload.OriginalsPrefix),
	}
	if store.MySQL != nil {
		opts = append(opts, processor.WithResumeRepository(store.MySQL))
	}
	if store.Redis != nil {
		opts = append(opts, processor.WithUploadLocker(store.Redis, 0))
	}
	if cfg.Upload.ValidateResumes {
		llm, err := processor.NewChatModel(ctx, cfg, "validator", uploadLogger)
		if err != nil {
			logger.Warn().Err(err).Msg("简历校验已关闭")
		} else {
			callTimeout := config.GetDuration(cfg.LLM.Timeout, 90*time.Second)
			opts = append(opts, processor.WithResumeChecker(parser.NewResumeValidator(llm, callTimeout, logger.Std("[ResumeValidator] "))))
		}
	}
	return processor.NewUploadService(ingestor, chunker, ix, store.Blobs, opts...)
}
