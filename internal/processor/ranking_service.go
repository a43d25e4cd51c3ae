package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang/groupcache/lru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"adequa-rag/internal/indexer"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/ranking"
	"adequa-rag/internal/storage"
	"adequa-rag/internal/storage/models"
	"adequa-rag/internal/tracing"
	"adequa-rag/internal/types"
)

// Scorer 给单个候选人打分
type Scorer interface {
	Score(ctx context.Context, candidateText, jobDescription string) (*types.CandidateAnalysis, error)
}

// LocationClassifier 岗位地点只分类一次，再逐个判断候选人
type LocationClassifier interface {
	AnalyzeJob(ctx context.Context, jobDescription string) parser.JobLocation
	AnalyzeCandidate(ctx context.Context, job parser.JobLocation, resumeText string) types.LocationAnalysis
}

// RankingCache 排名结果缓存
type RankingCache interface {
	GetRankingResult(ctx context.Context, indexID, jd string) (*types.RankingResult, bool, error)
	SetRankingResult(ctx context.Context, indexID, jd string, result *types.RankingResult, ttl time.Duration) error
}

// RunRepository 排名记录持久化
type RunRepository interface {
	SaveRankingRun(ctx context.Context, run *models.RankingRun) error
	GetRankingRun(ctx context.Context, runID string) (*models.RankingRun, error)
}

// RankingService 对一个索引中的候选人按岗位描述排名
type RankingService struct {
	indexer     *indexer.Indexer
	scorer      Scorer
	location    LocationClassifier
	locationSet bool
	engine      *ranking.Engine

	cache    RankingCache
	runs     RunRepository
	cacheTTL time.Duration

	topK           int
	concurrency    int
	requestTimeout time.Duration

	// 最近的排名结果，没有 MySQL 时用于导出
	recentMu sync.Mutex
	recent   *lru.Cache

	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// RankingOption 是 RankingService 的配置选项
type RankingOption func(*RankingService)

// WithScorer 替换默认的评分器
func WithScorer(s Scorer) RankingOption {
	return func(r *RankingService) { r.scorer = s }
}

// WithLocationClassifier 设置地点分析；nil 表示不做地点分析
func WithLocationClassifier(l LocationClassifier) RankingOption {
	return func(r *RankingService) {
		r.location = l
		r.locationSet = true
	}
}

// WithEngine 设置排名引擎
func WithEngine(e *ranking.Engine) RankingOption {
	return func(r *RankingService) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithRankingCache 设置结果缓存
func WithRankingCache(c RankingCache, ttl time.Duration) RankingOption {
	return func(r *RankingService) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// WithRunRepository 设置排名记录的持久化
func WithRunRepository(repo RunRepository) RankingOption {
	return func(r *RankingService) { r.runs = repo }
}

// WithRetrieveTopK 每次检索的分块数
func WithRetrieveTopK(k int) RankingOption {
	return func(r *RankingService) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithConcurrency 同时评分的候选人数
func WithConcurrency(n int) RankingOption {
	return func(r *RankingService) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRequestTimeout 整个排名请求的超时
func WithRequestTimeout(d time.Duration) RankingOption {
	return func(r *RankingService) { r.requestTimeout = d }
}

// WithRankingLogger 设置日志记录器
func WithRankingLogger(l *log.Logger) RankingOption {
	return func(r *RankingService) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRankingService 创建排名服务；llm 用于默认的评分器和地点分析器
// llm 与 WithScorer 都没有提供时返回 *ConfigurationError
func NewRankingService(llm model.ToolCallingChatModel, ix *indexer.Indexer, opts ...RankingOption) (*RankingService, error) {
	if ix == nil {
		return nil, &ConfigurationError{Component: "embedding", Err: parser.ErrEmbedderRequired}
	}
	s := &RankingService{
		indexer:     ix,
		engine:      ranking.NewEngine(),
		topK:        50,
		concurrency: 4,
		recent:      lru.New(64),
		logger:      log.New(io.Discard, "", 0),
		tracer:      otel.Tracer("adequa-rag/processor/ranking"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.locationSet && llm != nil {
		s.location = parser.NewLocationAnalyzer(llm, s.logger)
	}
	if s.scorer == nil {
		if llm == nil {
			return nil, &ConfigurationError{Component: "llm", Err: ErrLLMNotConfigured}
		}
		s.scorer = parser.NewCandidateScorer(llm, s.logger)
	}
	return s, nil
}

// RankCandidates 检索索引、逐个评分并排序
// 请求被取消或超时时返回 ctx 的错误，不返回部分结果
func (s *RankingService) RankCandidates(ctx context.Context, jobDescription, indexID string) (*types.RankingResult, error) {
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, fmt.Errorf("%w: job_description 不能为空", ErrInvalidRequest)
	}
	if indexID == "" {
		return nil, fmt.Errorf("%w: index_id 不能为空", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "RankingService.RankCandidates",
		trace.WithAttributes(
			attribute.String("index.id", indexID),
			attribute.Int("job_description.length", len(jobDescription)),
			attribute.String("job_description.preview", tracing.Clip(tracing.KindJobDescription, jobDescription)),
		))
	defer span.End()

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	if cached := s.cachedResult(ctx, indexID, jobDescription); cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	start := s.now()
	handle, err := s.indexer.Load(ctx, indexID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeIndex)
		return nil, err
	}
	chunks, err := handle.Retrieve(ctx, jobDescription, s.topK)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeIndex)
		return nil, fmt.Errorf("检索索引 %s 失败: %w", indexID, err)
	}
	groups := ranking.GroupByCandidate(chunks)
	span.SetAttributes(attribute.Int("retrieved.chunks", len(chunks)), attribute.Int("candidates", len(groups)))
	s.logger.Printf("索引 %s 检索到 %d 个分块，%d 位候选人", indexID, len(chunks), len(groups))

	analyses, err := s.scoreGroups(ctx, jobDescription, groups)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	outcome := s.engine.Rank(analyses)
	result := ranking.Compose(jobDescription, outcome)
	result.IndexID = indexID
	if runID, err := uuid.NewV7(); err == nil {
		result.RunID = runID.String()
	}

	s.remember(&result)
	s.persist(ctx, &result, jobDescription, s.now().Sub(start))
	if s.cache != nil {
		if err := s.cache.SetRankingResult(ctx, indexID, jobDescription, &result, s.cacheTTL); err != nil {
			s.logger.Printf("WARN: 缓存排名结果失败: %v", err)
		}
	}
	return &result, nil
}

// scoreGroups 并发评分；结果写入预分配的位置，顺序与完成先后无关
func (s *RankingService) scoreGroups(ctx context.Context, jd string, groups ranking.CandidateGroups) ([]types.CandidateAnalysis, error) {
	var job parser.JobLocation
	if s.location != nil && len(groups) > 0 {
		job = s.location.AnalyzeJob(ctx, jd)
	}

	degenerate := parser.IsDegenerateJobDescription(jd)
	analyses := make([]types.CandidateAnalysis, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, group := range groups {
		g.Go(func() error {
			text := group.Text()
			a, err := s.scorer.Score(gctx, text, jd)
			if err != nil {
				return err
			}
			a.FileName = group.FileName
			if missingName(a.CandidateName, degenerate) {
				if name := group.Chunks[0].Metadata.String(types.MetaCandidateName); name != "" {
					a.CandidateName = name
				}
			}
			if s.location != nil {
				loc := s.location.AnalyzeCandidate(gctx, job, text)
				a.LocationAnalysis = &loc
			}
			analyses[i] = *a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analyses, nil
}

// missingName 判断模型给出的姓名是否只是占位值；岗位描述无效时保留 "Não informado"
func missingName(name string, degenerateJD bool) bool {
	switch name {
	case "", parser.NameUnknown:
		return true
	case parser.NameNotInformed:
		return !degenerateJD
	}
	return false
}

func (s *RankingService) cachedResult(ctx context.Context, indexID, jd string) *types.RankingResult {
	if s.cache == nil {
		return nil
	}
	res, ok, err := s.cache.GetRankingResult(ctx, indexID, jd)
	if err != nil {
		s.logger.Printf("WARN: 读取排名缓存失败: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	s.logger.Printf("排名缓存命中: 索引 %s", indexID)
	return res
}

func (s *RankingService) remember(result *types.RankingResult) {
	if result.RunID == "" {
		return
	}
	s.recentMu.Lock()
	s.recent.Add(result.RunID, *result)
	s.recentMu.Unlock()
}

func (s *RankingService) persist(ctx context.Context, result *types.RankingResult, jd string, took time.Duration) {
	if s.runs == nil || result.RunID == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Printf("WARN: 序列化排名结果失败: %v", err)
		return
	}
	run := &models.RankingRun{
		RunID:           result.RunID,
		IndexID:         result.IndexID,
		JDHash:          storage.JobDescriptionHash(jd),
		JobDescription:  jd,
		TotalCandidates: result.TotalCandidates,
		DriftDetected:   result.DriftDetected,
		Result:          datatypes.JSON(payload),
		DurationMS:      took.Milliseconds(),
	}
	if result.BestCandidate != nil {
		run.BestCandidate = result.BestCandidate.CandidateName
	}
	if err := s.runs.SaveRankingRun(ctx, run); err != nil {
		s.logger.Printf("WARN: 保存排名记录失败: %v", err)
	}
}

// GetRun 按 run id 读取排名结果：先查最近结果，再查数据库
func (s *RankingService) GetRun(ctx context.Context, runID string) (*types.RankingResult, error) {
	s.recentMu.Lock()
	v, ok := s.recent.Get(runID)
	s.recentMu.Unlock()
	if ok {
		res := v.(types.RankingResult)
		return &res, nil
	}
	if s.runs == nil {
		return nil, storage.ErrRunNotFound
	}

	run, err := s.runs.GetRankingRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var res types.RankingResult
	if err := json.Unmarshal(run.Result, &res); err != nil {
		return nil, fmt.Errorf("解析排名记录 %s 失败: %w", runID, err)
	}
	return &res, nil
}

// IsNotFound 索引或排名记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, indexer.ErrIndexNotFound) || errors.Is(err, storage.ErrRunNotFound)
}
