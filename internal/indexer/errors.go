package indexer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrIndexNotFound 索引不存在
var ErrIndexNotFound = errors.New("index not found")

// IndexNotFoundError 携带请求的索引 id 和本地可用的索引 id
type IndexNotFoundError struct {
	IndexID   string
	Available []string
}

func (e *IndexNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("index %q not found; no indexes available", e.IndexID)
	}
	return fmt.Sprintf("index %q not found; available indexes: %s", e.IndexID, strings.Join(e.Available, ", "))
}

// Is 使 errors.Is(err, ErrIndexNotFound) 成立
func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}

var indexIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateIndexID 在访问文件系统或对象存储之前校验 id
func ValidateIndexID(id string) error {
	if !indexIDPattern.MatchString(id) {
		return fmt.Errorf("invalid index id %q", id)
	}
	return nil
}

// NewIndexID 生成 "YYYYMMDDhhmmss-<12位十六进制>"，后缀取自 UUIDv7 的随机部分
func NewIndexID(now time.Time) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate index id: %w", err)
	}
	hex := strings.ReplaceAll(u.String(), "-", "")
	return now.UTC().Format("20060102150405") + "-" + hex[len(hex)-12:], nil
}
