package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"adequa-rag/internal/config"
)

// ErrBlobNotFound 对象不存在
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 对象存储抽象：索引归档和上传原件都经由它保存
type BlobStore interface {
	// Put 写入对象，size 未知时传 -1
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get 读取对象，不存在时返回 ErrBlobNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List 按前缀列出对象键，结果有序
	List(ctx context.Context, prefix string) ([]string, error)
}

// DefaultLocalBlobDir 没有配置远程对象存储时的本地目录
const DefaultLocalBlobDir = "blob_data"

// NewBlobStore 按配置选择后端：MinIO > GCS > SQLite > 本地目录
// remote 为 false 表示退回到了本地目录
func NewBlobStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store BlobStore, remote bool, err error) {
	switch {
	case cfg.MinIO.Endpoint != "":
		store, err = NewMinIO(ctx, &cfg.MinIO, logger)
		return store, true, err
	case cfg.GCS.Bucket != "":
		store, err = NewGCS(ctx, &cfg.GCS, logger)
		return store, true, err
	case cfg.SQLiteBlob.Path != "":
		store, err = NewSQLiteBlobStore(ctx, cfg.SQLiteBlob.Path)
		return store, true, err
	}
	store, err = NewLocalBlobStore(DefaultLocalBlobDir)
	return store, false, err
}

// PutWithMD5 写入对象并同时计算内容的 MD5
func PutWithMD5(ctx context.Context, store BlobStore, key string, r io.Reader, size int64, contentType string) (string, error) {
	h := md5.New()
	if err := store.Put(ctx, key, io.TeeReader(r, h), size, contentType); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentType 按扩展名推断内容类型
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".md", ".markdown":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gz", ".tgz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}

// LocalBlobStore 以目录保存对象，键中的 / 映射为子目录
type LocalBlobStore struct {
	root string
}

// NewLocalBlobStore 创建本地对象存储
func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建本地对象存储目录失败: %w", err)
	}
	return &LocalBlobStore{root: root}, nil
}

func (l *LocalBlobStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put 实现 BlobStore，先写临时文件再改名
func (l *LocalBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Get 实现 BlobStore
func (l *LocalBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	return f, err
}

// Delete 实现 BlobStore，不存在的对象视为已删除
func (l *LocalBlobStore) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists 实现 BlobStore
func (l *LocalBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// List 实现 BlobStore
func (l *LocalBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// MemoryBlobStore 内存对象存储，用于测试
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBlobStore 创建内存对象存储
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string][]byte{}}
}

// Put 实现 BlobStore
func (m *MemoryBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

// Get 实现 BlobStore
func (m *MemoryBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete 实现 BlobStore
func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Exists 实现 BlobStore
func (m *MemoryBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok, nil
}

// List 实现 BlobStore
func (m *MemoryBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var (
	_ BlobStore = (*LocalBlobStore)(nil)
	_ BlobStore = (*MemoryBlobStore)(nil)
)
