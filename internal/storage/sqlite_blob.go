package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBlobStore 把对象保存在单个 SQLite 文件中，适合单机部署
type SQLiteBlobStore struct {
	db *sql.DB
}

var _ BlobStore = (*SQLiteBlobStore)(nil)

const sqliteBlobSchema = `CREATE TABLE IF NOT EXISTS blobs (
	key          TEXT PRIMARY KEY,
	content_type TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL,
	data         BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
)`

// NewSQLiteBlobStore 打开（必要时创建）数据库文件；path 为 ":memory:" 时使用内存库
func NewSQLiteBlobStore(ctx context.Context, path string) (*SQLiteBlobStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating blob directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening blob database: %w", err)
	}
	// 内存库每个连接是独立的数据库
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, sqliteBlobSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blob table: %w", err)
	}
	return &SQLiteBlobStore{db: db}, nil
}

// Put 实现 BlobStore
func (s *SQLiteBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading blob %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blobs (key, content_type, size, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content_type = excluded.content_type, size = excluded.size,
		 data = excluded.data, updated_at = excluded.updated_at`,
		key, contentType, len(data), data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	return nil
}

// Get 实现 BlobStore
func (s *SQLiteBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete 实现 BlobStore
func (s *SQLiteBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}

// Exists 实现 BlobStore
func (s *SQLiteBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blobs WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// List 实现 BlobStore
func (s *SQLiteBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}
