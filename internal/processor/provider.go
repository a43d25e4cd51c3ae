package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"

	"adequa-rag/internal/config"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/ranking"
	"adequa-rag/pkg/agent"
	"adequa-rag/pkg/ratelimit"
)

// NewChatModel 按配置创建带限流、超时和重试的聊天模型
// task 用于查找任务专用模型（scorer / location / validator）
func NewChatModel(ctx context.Context, cfg *config.Config, task string, logger *log.Logger) (model.ToolCallingChatModel, error) {
	if !cfg.LLMConfigured() {
		return nil, &ConfigurationError{Component: "llm", Err: ErrLLMNotConfigured}
	}

	modelName := cfg.GetModelForTask(task)
	var base model.ToolCallingChatModel
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		g, err := agent.NewGeminiChatModel(ctx, cfg.LLM.APIKey, modelName)
		if err != nil {
			return nil, fmt.Errorf("创建Gemini模型失败: %w", err)
		}
		g.SetLogger(logger)
		base = g
	case config.ProviderOpenAI:
		m, err := agent.NewOpenAICompatibleChatModel(cfg.LLM.APIKey, modelName, cfg.LLM.APIURL, agent.WithOpenAILogger(logger))
		if err != nil {
			return nil, fmt.Errorf("创建OpenAI兼容模型失败: %w", err)
		}
		base = m
	default:
		return nil, &ConfigurationError{Component: "llm", Err: fmt.Errorf("未知的LLM提供方 %q", cfg.LLM.Provider)}
	}

	callTimeout := config.GetDuration(cfg.LLM.Timeout, 90*time.Second)
	return ratelimit.NewLLMWithRateLimit(base, cfg.LLM.QPM, cfg.LLM.MaxRetries, 2*time.Second, callTimeout), nil
}

// NewEmbedder 按配置创建向量化器；hash 提供方不需要 API key
func NewEmbedder(cfg *config.Config, logger *log.Logger) (parser.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderHash:
		dims := cfg.Embedding.Dimensions
		if dims <= 0 {
			dims = 512
		}
		return parser.NewHashEmbedder(dims), nil
	case config.ProviderOpenAI, "":
		if cfg.Embedding.APIKey == "" {
			return nil, &ConfigurationError{Component: "embedding", Err: parser.ErrEmbedderRequired}
		}
		return parser.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding, logger)
	default:
		return nil, &ConfigurationError{Component: "embedding", Err: fmt.Errorf("未知的embedding提供方 %q", cfg.Embedding.Provider)}
	}
}

// NewChunker 按配置创建分块器；语义分块使用同一个向量化器
func NewChunker(cfg *config.Config, embedder parser.Embedder, logger *log.Logger) (*parser.SmartChunker, error) {
	opts := []parser.ChunkerOption{
		parser.WithChunkWindow(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
		parser.WithBreakpointPercentile(cfg.Chunker.BreakpointPercentile),
		parser.WithResumeFileTypes(cfg.Chunker.ResumeFileTypes),
		parser.WithChunkerLogger(logger),
	}
	if cfg.Chunker.Strategy != "" {
		opts = append(opts, parser.WithStrategy(parser.ChunkStrategy(cfg.Chunker.Strategy)))
	}
	if embedder != nil {
		opts = append(opts, parser.WithEmbedder(embedder))
	}
	return parser.NewSmartChunker(opts...)
}

// ScoringThresholdsFromConfig 把配置中的评分阈值转换为 parser.ScoringThresholds，未设置的项使用默认值
func ScoringThresholdsFromConfig(c config.ScoringConfig) parser.ScoringThresholds {
	t := parser.DefaultScoringThresholds()
	set := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	set(&t.HighCap, c.HighCap)
	set(&t.HighCapTo, c.HighCapTo)
	set(&t.LowFloor, c.LowFloor)
	set(&t.LowFloorTo, c.LowFloorTo)
	set(&t.MinTextLength, c.MinTextLength)
	set(&t.AuthFailureScore, c.AuthFailureScore)
	set(&t.ErrorScore, c.ErrorScore)
	return t
}

// RankingOptionsFromConfig 把配置中的评分、地点、排名和缓存参数转成 RankingService 选项
// llm 为 nil 时不创建默认的评分器和地点分析器
func RankingOptionsFromConfig(cfg *config.Config, llm model.ToolCallingChatModel, logger *log.Logger) []RankingOption {
	callTimeout := config.GetDuration(cfg.LLM.Timeout, 90*time.Second)
	opts := []RankingOption{
		WithRankingLogger(logger),
		WithRetrieveTopK(cfg.Indexer.RetrieveTopK),
		WithConcurrency(cfg.LLM.Concurrency),
		WithRequestTimeout(config.GetDuration(cfg.Ranking.RequestTimeout, 0)),
		WithEngine(ranking.NewEngine(
			ranking.WithAdequacyThreshold(cfg.Ranking.AdequacyThreshold),
			ranking.WithDriftRange(cfg.Ranking.DriftRange),
			ranking.WithEngineLogger(logger),
		)),
	}
	if llm == nil {
		return opts
	}

	opts = append(opts, WithScorer(parser.NewCandidateScorer(llm, logger,
		parser.WithScoringThresholds(ScoringThresholdsFromConfig(cfg.Scoring)),
		parser.WithScorerCallTimeout(callTimeout),
	)))
	if cfg.Location.Enabled {
		opts = append(opts, WithLocationClassifier(parser.NewLocationAnalyzer(llm, logger,
			parser.WithFallbackCities(cfg.Location.Cities),
			parser.WithLocationCallTimeout(callTimeout),
		)))
	} else {
		opts = append(opts, WithLocationClassifier(nil))
	}
	return opts
}
