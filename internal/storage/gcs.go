package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"adequa-rag/internal/config"
)

// GCS 基于 Google Cloud Storage 的对象存储
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	logger *log.Logger
}

var _ BlobStore = (*GCS)(nil)

// NewGCS 创建 GCS 客户端；未配置凭据文件时使用默认凭据链
func NewGCS(ctx context.Context, cfg *config.GCSConfig, logger *log.Logger) (*GCS, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建GCS客户端失败: %w", err)
	}
	logger.Printf("GCS客户端初始化完成: bucket=%s", cfg.Bucket)
	return &GCS{client: client, bucket: client.Bucket(cfg.Bucket), logger: logger}, nil
}

// Put 实现 BlobStore
func (g *GCS) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// Get 实现 BlobStore
func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", key, err)
	}
	return rc, nil
}

// Delete 实现 BlobStore
func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("删除对象 %s 失败: %w", key, err)
	}
	return nil
}

// Exists 实现 BlobStore
func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}

// List 实现 BlobStore
func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close 关闭客户端
func (g *GCS) Close() error {
	return g.client.Close()
}
