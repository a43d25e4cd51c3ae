package storage

import (
	"context"
	"fmt"
	"io"
	"log"

	"adequa-rag/internal/config"
)

// Storage 存储管理器，聚合所有存储相关依赖
// 只有 Blobs 一定存在，其余组件未配置或连接失败时为 nil
type Storage struct {
	// 对象存储：索引归档、上传原件
	Blobs BlobStore
	// RemoteBlobs 为 false 表示 Blobs 是本地目录
	RemoteBlobs bool

	// 消息队列
	RabbitMQ *RabbitMQ

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis

	logger *log.Logger
}

// NewStorage 创建存储管理器；可选组件失败只记警告
func NewStorage(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Storage{logger: logger}

	var err error
	s.Blobs, s.RemoteBlobs, err = NewBlobStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Printf("WARN: 初始化RabbitMQ失败: %v", err)
		}
	}

	if cfg.MySQL.Host != "" {
		s.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Printf("WARN: 初始化MySQL失败: %v", err)
		}
	}

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedis(&cfg.Redis)
		if err != nil {
			logger.Printf("WARN: 初始化Redis失败: %v", err)
		}
	}
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			s.logger.Printf("关闭MySQL连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Printf("关闭Redis连接失败: %v", err)
		}
	}
	if c, ok := s.Blobs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Printf("关闭对象存储失败: %v", err)
		}
	}
}
