package indexer

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"adequa-rag/internal/storage"
)

// IndexStore 索引的持久化方式
type IndexStore interface {
	Save(ctx context.Context, id string, idx *VectorIndex) error
	// Load 不存在时返回 ErrIndexNotFound
	Load(ctx context.Context, id string) (*VectorIndex, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// LocalStore 每个索引一个子目录
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地索引存储
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Save 先写到同级临时目录再改名，读者看不到写了一半的索引
func (s *LocalStore) Save(ctx context.Context, id string, idx *VectorIndex) error {
	if err := ValidateIndexID(id); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(s.root, ".build-"+id+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := idx.writeDir(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.root, id))
}

// Load 实现 IndexStore
func (s *LocalStore) Load(ctx context.Context, id string) (*VectorIndex, error) {
	if err := ValidateIndexID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(filepath.Join(dir, indexMetaFile)); errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotFound
	}
	return readDir(dir)
}

// List 实现 IndexStore，结果有序
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), indexMetaFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete 实现 IndexStore
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	if err := ValidateIndexID(id); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, id))
}

// ArchiveStore 把索引目录打成 tar.gz 存进对象存储
type ArchiveStore struct {
	blobs  storage.BlobStore
	prefix string
	logger *log.Logger
}

// NewArchiveStore 创建归档存储；prefix 为空时使用 vector_indexes
func NewArchiveStore(blobs storage.BlobStore, prefix string, logger *log.Logger) *ArchiveStore {
	if prefix == "" {
		prefix = "vector_indexes"
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ArchiveStore{blobs: blobs, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

func (s *ArchiveStore) key(id string) string {
	return path.Join(s.prefix, id+".tar.gz")
}

// withTempDir 创建临时目录，fn 返回后无论成功与否都删除
func withTempDir(pattern string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

// Save 实现 IndexStore
func (s *ArchiveStore) Save(ctx context.Context, id string, idx *VectorIndex) error {
	if err := ValidateIndexID(id); err != nil {
		return err
	}
	return withTempDir("adequa-index-*", func(dir string) error {
		indexDir := filepath.Join(dir, id)
		if err := idx.writeDir(indexDir); err != nil {
			return err
		}
		archive := filepath.Join(dir, id+".tar.gz")
		if err := tarGzDir(indexDir, archive); err != nil {
			return fmt.Errorf("archive index: %w", err)
		}

		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		if err := s.blobs.Put(ctx, s.key(id), f, st.Size(), "application/gzip"); err != nil {
			return fmt.Errorf("upload index archive: %w", err)
		}
		s.logger.Printf("索引归档已上传: %s (%d 字节)", s.key(id), st.Size())
		return nil
	})
}

// Load 实现 IndexStore
func (s *ArchiveStore) Load(ctx context.Context, id string) (*VectorIndex, error) {
	if err := ValidateIndexID(id); err != nil {
		return nil, err
	}
	rc, err := s.blobs.Get(ctx, s.key(id))
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var idx *VectorIndex
	err = withTempDir("adequa-index-*", func(dir string) error {
		if err := untarGz(rc, dir); err != nil {
			return fmt.Errorf("extract index archive: %w", err)
		}
		var err error
		idx, err = readDir(dir)
		return err
	})
	return idx, err
}

// List 实现 IndexStore
func (s *ArchiveStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.blobs.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		name := path.Base(k)
		if id, ok := strings.CutSuffix(name, ".tar.gz"); ok && ValidateIndexID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete 实现 IndexStore
func (s *ArchiveStore) Delete(ctx context.Context, id string) error {
	if err := ValidateIndexID(id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, s.key(id)); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return err
	}
	return nil
}

// tarGzDir 打包目录中的普通文件（不含子目录）
func tarGzDir(dir, dest string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// untarGz 解压到 dir，只接受不带路径的普通文件
func untarGz(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if name != hdr.Name || name == "." || name == ".." {
			return fmt.Errorf("unexpected archive entry %q", hdr.Name)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, tr)
		f.Close()
		if err != nil {
			return err
		}
	}
}
