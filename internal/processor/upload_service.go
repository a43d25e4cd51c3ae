package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"adequa-rag/internal/indexer"
	"adequa-rag/internal/parser"
	"adequa-rag/internal/storage"
	"adequa-rag/internal/storage/models"
	"adequa-rag/internal/tracing"
	"adequa-rag/internal/types"
)

// ResumeRepository 简历记录与 outbox 事件的持久化
type ResumeRepository interface {
	CountResumes(ctx context.Context, userID string) (int64, error)
	SaveUpload(ctx context.Context, records []models.ResumeRecord, event *models.OutboxMessage) error
	ListResumeRecords(ctx context.Context, userID string) ([]models.ResumeRecord, error)
}

// UploadLocker 同一用户的上传互斥
type UploadLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, value string) (bool, error)
}

// ResumeChecker 判断文本是否为简历
type ResumeChecker interface {
	IsResume(ctx context.Context, text string) bool
}

// DocumentChunker 把文档切成可索引的分块
type DocumentChunker interface {
	Chunk(ctx context.Context, docs []types.Document) ([]types.Document, error)
}

// UploadFile 一个待上传的文件
type UploadFile struct {
	Name    string
	Content io.Reader
}

// AcceptedResume 成功入索引的文件
type AcceptedResume struct {
	FileName      string `json:"file_name"`
	CandidateName string `json:"candidate_name"`
	ObjectKey     string `json:"object_key,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
}

// SkippedFile 被跳过的文件及原因
type SkippedFile struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// UploadResult 一次上传的结果
type UploadResult struct {
	IndexID    string           `json:"index_id"`
	UserID     string           `json:"user_id"`
	Accepted   []AcceptedResume `json:"accepted"`
	Skipped    []SkippedFile    `json:"skipped"`
	ChunkCount int              `json:"chunk_count"`
}

// IndexSummary 一个索引的概况
type IndexSummary struct {
	IndexID     string    `json:"index_id"`
	ResumeCount int       `json:"resume_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Resumes     []string  `json:"resumes,omitempty"`
}

// 跳过原因
const (
	skipUnsupported = "tipo de arquivo não suportado"
	skipDuplicate   = "arquivo duplicado no envio"
	skipTooLarge    = "arquivo excede o tamanho máximo"
	skipNoText      = "nenhum texto extraído"
	skipNotResume   = "o documento não parece ser um currículo"
)

// UploadService 上传简历并为一批文件构建一个新索引
type UploadService struct {
	ingestor *parser.Ingestor
	chunker  DocumentChunker
	indexer  *indexer.Indexer
	blobs    storage.BlobStore

	repo      ResumeRepository
	locker    UploadLocker
	validator ResumeChecker

	maxResumes      int
	maxFileSize     int64
	originalsPrefix string
	lockTTL         time.Duration

	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// UploadOption 是 UploadService 的配置选项
type UploadOption func(*UploadService)

// WithResumeRepository 设置简历记录的持久化；不设置时不限制上传数量
func WithResumeRepository(repo ResumeRepository) UploadOption {
	return func(s *UploadService) { s.repo = repo }
}

// WithUploadLocker 设置上传锁
func WithUploadLocker(l UploadLocker, ttl time.Duration) UploadOption {
	return func(s *UploadService) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithResumeChecker 启用简历校验，非简历文件被跳过
func WithResumeChecker(c ResumeChecker) UploadOption {
	return func(s *UploadService) { s.validator = c }
}

// WithMaxResumesPerUser 每个用户的简历上限，0 表示不限制
func WithMaxResumesPerUser(n int) UploadOption {
	return func(s *UploadService) { s.maxResumes = n }
}

// WithMaxFileSize 单个文件的字节上限，0 表示不限制
func WithMaxFileSize(n int64) UploadOption {
	return func(s *UploadService) { s.maxFileSize = n }
}

// WithOriginalsPrefix 原始文件在对象存储中的前缀
func WithOriginalsPrefix(prefix string) UploadOption {
	return func(s *UploadService) {
		if prefix != "" {
			s.originalsPrefix = strings.Trim(prefix, "/")
		}
	}
}

// WithUploadLogger 设置日志记录器
func WithUploadLogger(l *log.Logger) UploadOption {
	return func(s *UploadService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewUploadService 创建上传服务；blobs 为 nil 时不保存原始文件
func NewUploadService(ingestor *parser.Ingestor, chunker DocumentChunker, ix *indexer.Indexer, blobs storage.BlobStore, opts ...UploadOption) (*UploadService, error) {
	if ingestor == nil || chunker == nil {
		return nil, &ConfigurationError{Component: "ingestion", Err: errors.New("ingestor and chunker are required")}
	}
	if ix == nil {
		return nil, &ConfigurationError{Component: "embedding", Err: parser.ErrEmbedderRequired}
	}
	s := &UploadService{
		ingestor:        ingestor,
		chunker:         chunker,
		indexer:         ix,
		blobs:           blobs,
		maxResumes:      40,
		originalsPrefix: "uploaded_files",
		lockTTL:         10 * time.Minute,
		logger:          log.New(io.Discard, "", 0),
		tracer:          otel.Tracer("adequa-rag/processor/upload"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// stagedFile 已落到临时目录的上传文件
type stagedFile struct {
	name string
	path string
	size int64
}

// Supports 文件扩展名是否可以读取
func (s *UploadService) Supports(fileName string) bool {
	return s.ingestor.Supports(fileName)
}

// UploadResumes 保存、解析、校验并索引一批简历，整批生成一个新索引
// ctx 结束时原样返回 ctx 的错误
func (s *UploadService) UploadResumes(ctx context.Context, userID string, files []UploadFile) (*UploadResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id 不能为空", ErrInvalidRequest)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: 没有上传文件", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "UploadService.UploadResumes",
		trace.WithAttributes(tracing.String("user.id", userID), attribute.Int("files.count", len(files))))
	defer span.End()

	if s.locker != nil {
		key := storage.UploadLockKey(userID)
		val, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if errors.Is(err, storage.ErrLockHeld) {
			return nil, ErrUploadInProgress
		}
		if err != nil {
			// 锁服务不可用时继续处理
			s.logger.Printf("WARN: 获取上传锁失败: %v", err)
		} else {
			defer func() {
				if _, err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, val); err != nil {
					s.logger.Printf("WARN: 释放上传锁失败: %v", err)
				}
			}()
		}
	}

	if err := s.checkLimit(ctx, userID, len(files)); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	result := &UploadResult{UserID: userID, Accepted: []AcceptedResume{}, Skipped: []SkippedFile{}}
	var indexID string
	err := withStagingDir(func(dir string) error {
		staged, err := s.stage(ctx, dir, files, result)
		if err != nil {
			return err
		}
		indexID, err = s.process(ctx, userID, staged, result)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	result.IndexID = indexID
	span.SetAttributes(attribute.String("index.id", indexID), attribute.Int("accepted", len(result.Accepted)))
	s.logger.Printf("用户 %s 上传完成: 索引 %s，接受 %d 个文件，跳过 %d 个", userID, indexID, len(result.Accepted), len(result.Skipped))
	return result, nil
}

func (s *UploadService) checkLimit(ctx context.Context, userID string, incoming int) error {
	if s.repo == nil || s.maxResumes <= 0 {
		return nil
	}
	count, err := s.repo.CountResumes(ctx, userID)
	if err != nil {
		return newProcessingError("count_resumes", ErrPersistFailed, err)
	}
	if int(count)+incoming > s.maxResumes {
		return fmt.Errorf("%w: 已有 %d 份，本次 %d 份，上限 %d 份", ErrUploadLimit, count, incoming, s.maxResumes)
	}
	return nil
}

func withStagingDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", "adequa-upload-*")
	if err != nil {
		return newProcessingError("stage", ErrIngestFailed, err)
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

// stage 把上传内容写到 dir/<i>/<name>，保留原文件名；不支持、重复或超限的文件记为跳过
func (s *UploadService) stage(ctx context.Context, dir string, files []UploadFile, result *UploadResult) ([]stagedFile, error) {
	seen := map[string]bool{}
	var staged []stagedFile
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(strings.TrimSpace(f.Name))
		switch {
		case name == "." || name == "/" || name == "" || !s.ingestor.Supports(name):
			result.Skipped = append(result.Skipped, SkippedFile{FileName: f.Name, Reason: skipUnsupported})
			continue
		case seen[name]:
			result.Skipped = append(result.Skipped, SkippedFile{FileName: name, Reason: skipDuplicate})
			continue
		}
		seen[name] = true

		sub := filepath.Join(dir, fmt.Sprintf("%03d", i))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, newProcessingError("stage", ErrIngestFailed, err)
		}
		path := filepath.Join(sub, name)
		size, tooLarge, err := s.writeStaged(path, f.Content)
		if err != nil {
			return nil, newProcessingError("stage", ErrIngestFailed, err)
		}
		if tooLarge {
			result.Skipped = append(result.Skipped, SkippedFile{FileName: name, Reason: skipTooLarge})
			continue
		}
		staged = append(staged, stagedFile{name: name, path: path, size: size})
	}
	return staged, nil
}

func (s *UploadService) writeStaged(path string, r io.Reader) (int64, bool, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, false, err
	}
	defer out.Close()

	src := r
	if s.maxFileSize > 0 {
		src = io.LimitReader(r, s.maxFileSize+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return 0, false, err
	}
	return n, s.maxFileSize > 0 && n > s.maxFileSize, nil
}

// process 解析、校验、保存原件、分块、建索引、写记录
func (s *UploadService) process(ctx context.Context, userID string, staged []stagedFile, result *UploadResult) (string, error) {
	paths := make([]string, len(staged))
	for i, f := range staged {
		paths[i] = f.path
	}
	docs, err := s.ingestor.Ingest(ctx, paths)
	if err != nil {
		return "", err
	}

	byFile := map[string][]types.Document{}
	for _, d := range docs {
		byFile[d.FileName()] = append(byFile[d.FileName()], d)
	}

	var accepted []stagedFile
	var kept []types.Document
	for _, f := range staged {
		fileDocs := byFile[f.name]
		if len(fileDocs) == 0 {
			result.Skipped = append(result.Skipped, SkippedFile{FileName: f.name, Reason: skipNoText})
			continue
		}
		if text := joinTexts(fileDocs); s.validator != nil && !s.validator.IsResume(ctx, text) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			trace.SpanFromContext(ctx).AddEvent("resume.rejected", trace.WithAttributes(
				tracing.String("file.name", f.name),
				attribute.String("content.preview", tracing.Clip(tracing.KindResume, text))))
			result.Skipped = append(result.Skipped, SkippedFile{FileName: f.name, Reason: skipNotResume})
			continue
		}
		accepted = append(accepted, f)
		kept = append(kept, fileDocs...)
	}
	if len(accepted) == 0 {
		return "", fmt.Errorf("%w: %d 个文件都被跳过", ErrNoValidResumes, len(result.Skipped))
	}

	kept = parser.Transform(kept)
	chunks, err := s.chunker.Chunk(ctx, kept)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newProcessingError("chunk", ErrChunkFailed, err)
	}

	objectKeys, md5s, err := s.storeOriginals(ctx, accepted)
	if err != nil {
		return "", err
	}

	indexID, err := s.indexer.BuildIndex(ctx, chunks)
	if err != nil {
		s.deleteOriginals(objectKeys)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newProcessingError("build_index", ErrIndexFailed, err)
	}

	chunkCounts := map[string]int{}
	for _, c := range chunks {
		chunkCounts[c.FileName()]++
	}
	firstDoc := map[string]types.Document{}
	for _, d := range kept {
		if _, ok := firstDoc[d.FileName()]; !ok {
			firstDoc[d.FileName()] = d
		}
	}

	records := make([]models.ResumeRecord, 0, len(accepted))
	for _, f := range accepted {
		d := firstDoc[f.name]
		entry := AcceptedResume{
			FileName:      f.name,
			CandidateName: d.Metadata.String(types.MetaCandidateName),
			ObjectKey:     objectKeys[f.name],
			ChunkCount:    chunkCounts[f.name],
		}
		result.Accepted = append(result.Accepted, entry)
		result.ChunkCount += entry.ChunkCount

		records = append(records, models.ResumeRecord{
			ID:            uuid.NewString(),
			UserID:        userID,
			IndexID:       indexID,
			FileName:      f.name,
			CandidateName: entry.CandidateName,
			ObjectKey:     entry.ObjectKey,
			FileMD5:       md5s[f.name],
			FileSize:      f.size,
			ChunkCount:    entry.ChunkCount,
			Metadata:      resumeMetadata(d.Metadata),
		})
	}

	if s.repo != nil {
		event, err := storage.NewIndexBuiltOutbox(storage.IndexBuiltMessage{
			IndexID:     indexID,
			UserID:      userID,
			ResumeCount: len(records),
			ChunkCount:  result.ChunkCount,
			BuiltAt:     s.now().UTC(),
		})
		if err == nil {
			err = s.repo.SaveUpload(ctx, records, event)
		}
		if err != nil {
			s.rollbackUpload(ctx, indexID, objectKeys)
			return "", newProcessingError("persist", ErrPersistFailed, err)
		}
	}
	return indexID, nil
}

// storeOriginals 原件写入 <prefix>/<ext>/<uuid>_<name>
func (s *UploadService) storeOriginals(ctx context.Context, files []stagedFile) (map[string]string, map[string]string, error) {
	keys := map[string]string{}
	md5s := map[string]string{}
	if s.blobs == nil {
		return keys, md5s, nil
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.name))
		key := fmt.Sprintf("%s/%s/%s_%s", s.originalsPrefix, strings.TrimPrefix(ext, "."), uuid.NewString(), f.name)
		sum, err := s.putFile(ctx, key, f, ext)
		if err != nil {
			s.deleteOriginals(keys)
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, newProcessingError("store_original", ErrStoreFailed, fmt.Errorf("%s: %w", f.name, err))
		}
		keys[f.name] = key
		md5s[f.name] = sum
	}
	return keys, md5s, nil
}

func (s *UploadService) putFile(ctx context.Context, key string, f stagedFile, ext string) (string, error) {
	in, err := os.Open(f.path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	return storage.PutWithMD5(ctx, s.blobs, key, in, f.size, storage.ContentType(ext))
}

// deleteOriginals 索引失败后清理已写入的原件，尽力而为
func (s *UploadService) deleteOriginals(keys map[string]string) {
	for _, key := range keys {
		if err := s.blobs.Delete(context.Background(), key); err != nil {
			s.logger.Printf("WARN: 删除原始文件 %s 失败: %v", key, err)
		}
	}
}

// rollbackUpload 记录未能持久化时删除原件和刚建好的索引
func (s *UploadService) rollbackUpload(ctx context.Context, indexID string, objectKeys map[string]string) {
	s.deleteOriginals(objectKeys)
	if err := s.indexer.DeleteIndex(context.WithoutCancel(ctx), indexID); err != nil {
		s.logger.Printf("WARN: 删除索引 %s 失败: %v", indexID, err)
	}
}

func joinTexts(docs []types.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Text
	}
	return strings.Join(parts, "\n")
}

// resumeMetadata 记录中保存的简历摘要字段
func resumeMetadata(md types.Metadata) datatypes.JSON {
	out := map[string]any{}
	for _, k := range []string{types.MetaSkills, types.MetaEducation, types.MetaExperience, types.MetaFileType} {
		if v, ok := md[k]; ok {
			out[k] = v
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// ListIndexes 按索引汇总用户的简历记录，最新的在前；没有数据库时列出本地可用的索引
func (s *UploadService) ListIndexes(ctx context.Context, userID string) ([]IndexSummary, error) {
	if s.repo == nil {
		ids, err := s.indexer.ListIndexes(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]IndexSummary, 0, len(ids))
		for _, id := range ids {
			out = append(out, IndexSummary{IndexID: id})
		}
		return out, nil
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id 不能为空", ErrInvalidRequest)
	}
	records, err := s.repo.ListResumeRecords(ctx, userID)
	if err != nil {
		return nil, newProcessingError("list_indexes", ErrPersistFailed, err)
	}

	pos := map[string]int{}
	var out []IndexSummary
	for _, r := range records {
		i, ok := pos[r.IndexID]
		if !ok {
			i = len(out)
			pos[r.IndexID] = i
			out = append(out, IndexSummary{IndexID: r.IndexID, CreatedAt: r.CreatedAt})
		}
		out[i].ResumeCount++
		out[i].Resumes = append(out[i].Resumes, r.FileName)
		if r.CreatedAt.Before(out[i].CreatedAt) {
			out[i].CreatedAt = r.CreatedAt
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if out == nil {
		out = []IndexSummary{}
	}
	return out, nil
}
