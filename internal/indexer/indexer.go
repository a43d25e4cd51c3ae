package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"adequa-rag/internal/parser"
	"adequa-rag/internal/types"
)

// Indexer 构建、加载和检索向量索引
type Indexer struct {
	embedder  parser.Embedder
	store     IndexStore
	batchSize   int
	loadTimeout time.Duration
	logger      *log.Logger
	now         func() time.Time

	mu    sync.Mutex
	cache *lru.Cache
	group singleflight.Group
}

// Option 是 Indexer 的配置选项
type Option func(*Indexer)

// WithBatchSize 每次向量化请求的分块数
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithHandleCache 句柄缓存容量，0 表示不缓存
func WithHandleCache(n int) Option {
	return func(ix *Indexer) {
		if n <= 0 {
			ix.cache = nil
			return
		}
		ix.cache = lru.New(n)
	}
}

// WithLoadTimeout 共享加载的超时；加载不受发起者取消的影响
func WithLoadTimeout(d time.Duration) Option {
	return func(ix *Indexer) {
		if d > 0 {
			ix.loadTimeout = d
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *log.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New 创建 Indexer
func New(embedder parser.Embedder, store IndexStore, opts ...Option) (*Indexer, error) {
	if embedder == nil {
		return nil, parser.ErrEmbedderRequired
	}
	if store == nil {
		return nil, errors.New("indexer: index store is required")
	}
	ix := &Indexer{
		embedder:    embedder,
		store:       store,
		batchSize:   32,
		loadTimeout: 2 * time.Minute,
		logger:      log.New(io.Discard, "", 0),
		now:         time.Now,
		cache:       lru.New(16),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Handle 已加载的只读索引
type Handle struct {
	index    *VectorIndex
	embedder parser.Embedder
}

// Info 索引信息
func (h *Handle) Info() types.IndexInfo { return h.index.Info }

// Retrieve 向量化查询并返回 top-k 分块
func (h *Handle) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievedChunk, error) {
	if h.index.Len() == 0 {
		return []types.RetrievedChunk{}, nil
	}
	vecs, err := h.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}
	return h.index.Search(vecs[0], topK), nil
}

// BuildIndex 向量化分块并持久化，返回新的索引 id；零个分块也会生成空索引
func (ix *Indexer) BuildIndex(ctx context.Context, chunks []types.Document) (string, error) {
	id, err := NewIndexID(ix.now())
	if err != nil {
		return "", err
	}

	idx := &VectorIndex{
		Info: types.IndexInfo{
			IndexID:        id,
			CreatedAt:      ix.now().UTC().Format(time.RFC3339),
			ChunkCount:     len(chunks),
			EmbeddingModel: ix.embedder.ModelName(),
			Dimensions:     ix.embedder.Dimensions(),
		},
		chunks:  make([]storedChunk, 0, len(chunks)),
		vectors: make([][]float64, 0, len(chunks)),
	}

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := ix.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return "", fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(batch))
		}
		for i, c := range batch {
			idx.chunks = append(idx.chunks, storedChunk{
				ID:       uuid.NewString(),
				Text:     c.Text,
				Metadata: c.Metadata.Clone(),
			})
			idx.vectors = append(idx.vectors, vecs[i])
		}
	}
	if len(idx.vectors) > 0 {
		idx.Info.Dimensions = len(idx.vectors[0])
	}

	if err := ix.store.Save(ctx, id, idx); err != nil {
		return "", fmt.Errorf("persist index %s: %w", id, err)
	}
	ix.remember(id, &Handle{index: idx, embedder: ix.embedder})
	ix.logger.Printf("索引 %s 构建完成: %d 个分块", id, len(chunks))
	return id, nil
}

// Load 加载索引，优先使用缓存；同一 id 的并发加载只读一次存储
func (ix *Indexer) Load(ctx context.Context, indexID string) (*Handle, error) {
	if err := ValidateIndexID(indexID); err != nil {
		return nil, ix.notFound(ctx, indexID)
	}
	if h, ok := ix.cached(indexID); ok {
		return h, nil
	}

	// 加载由所有等待者共享，不能绑在第一个调用者的 ctx 上
	ch := ix.group.DoChan(indexID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.loadTimeout)
		defer cancel()
		idx, err := ix.store.Load(loadCtx, indexID)
		if err != nil {
			return nil, err
		}
		h := &Handle{index: idx, embedder: ix.embedder}
		ix.remember(indexID, h)
		return h, nil
	})
	var (
		v   any
		err error
	)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		v, err = res.Val, res.Err
	}
	if errors.Is(err, ErrIndexNotFound) {
		return nil, ix.notFound(ctx, indexID)
	}
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", indexID, err)
	}
	return v.(*Handle), nil
}

// Search 加载索引并检索
func (ix *Indexer) Search(ctx context.Context, indexID, query string, topK int) ([]types.RetrievedChunk, error) {
	h, err := ix.Load(ctx, indexID)
	if err != nil {
		return nil, err
	}
	return h.Retrieve(ctx, query, topK)
}

// ListIndexes 列出存储中的索引 id
func (ix *Indexer) ListIndexes(ctx context.Context) ([]string, error) {
	return ix.store.List(ctx)
}

// Warm 预加载索引到缓存
func (ix *Indexer) Warm(ctx context.Context, indexID string) error {
	_, err := ix.Load(ctx, indexID)
	return err
}

// DeleteIndex 删除索引并清除缓存的句柄；索引不存在不算错误
func (ix *Indexer) DeleteIndex(ctx context.Context, indexID string) error {
	if err := ValidateIndexID(indexID); err != nil {
		return err
	}
	ix.mu.Lock()
	if ix.cache != nil {
		ix.cache.Remove(indexID)
	}
	ix.mu.Unlock()
	return ix.store.Delete(ctx, indexID)
}

func (ix *Indexer) notFound(ctx context.Context, indexID string) error {
	available, err := ix.store.List(ctx)
	if err != nil {
		ix.logger.Printf("WARN: 列出索引失败: %v", err)
	}
	return &IndexNotFoundError{IndexID: indexID, Available: available}
}

func (ix *Indexer) cached(id string) (*Handle, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cache == nil {
		return nil, false
	}
	v, ok := ix.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Handle), true
}

func (ix *Indexer) remember(id string, h *Handle) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cache != nil {
		ix.cache.Add(id, h)
	}
}
