package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"adequa-rag/internal/config"
	"adequa-rag/internal/constants"
	"adequa-rag/internal/tracing"
	"adequa-rag/internal/types"
)

// ErrLockHeld 锁已被其他请求持有
var ErrLockHeld = errors.New("lock is held by another request")

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("adequa-rag/storage/redis")

// Redis 排名结果缓存和上传锁
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedis 创建 Redis 客户端并检查连接
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// JobDescriptionHash 归一化空白后的 JD 哈希
func JobDescriptionHash(jd string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(jd), " ")))
	return hex.EncodeToString(sum[:])
}

// RankingCacheKey 排名结果的缓存键
func RankingCacheKey(indexID, jd string) string {
	return fmt.Sprintf(constants.KeyRankingResult, indexID, JobDescriptionHash(jd))
}

// GetRankingResult 读取缓存的排名结果，未命中时返回 (nil, false, nil)
func (r *Redis) GetRankingResult(ctx context.Context, indexID, jd string) (*types.RankingResult, bool, error) {
	key := RankingCacheKey(indexID, jd)
	ctx, span := redisTracer.Start(ctx, "Redis.GetRankingResult",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemRedis, attribute.String("db.redis.key", tracing.Clip(tracing.KindRedisKey, key))))
	defer span.End()

	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	var result types.RankingResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		// 损坏的缓存当作未命中
		span.RecordError(err)
		return nil, false, nil
	}
	span.SetAttributes(attribute.Bool("db.redis.key_exists", true))
	return &result, true, nil
}

// SetRankingResult 缓存排名结果
func (r *Redis) SetRankingResult(ctx context.Context, indexID, jd string, result *types.RankingResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal ranking result: %w", err)
	}
	key := RankingCacheKey(indexID, jd)
	ctx, span := redisTracer.Start(ctx, "Redis.SetRankingResult",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemRedis,
			attribute.String("db.redis.key", tracing.Clip(tracing.KindRedisKey, key)),
			attribute.Int("db.redis.value_length", len(data))))
	defer span.End()

	if err := r.Client.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// AcquireLock 尝试获取一个分布式锁，返回持有者标识；锁被占用时返回 ErrLockHeld
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}
	return lockValue, nil
}

// 如果key存在且值匹配，则删除key
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// ReleaseLock 释放分布式锁，只删除自己持有的锁
func (r *Redis) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	res, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// UploadLockKey 用户上传锁的键
func UploadLockKey(userID string) string {
	return fmt.Sprintf(constants.KeyUploadLock, userID)
}
