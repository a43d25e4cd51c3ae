package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"adequa-rag/internal/config"
	"adequa-rag/internal/constants"
	"adequa-rag/internal/storage/models"
	"adequa-rag/internal/types"
)

func TestRankingCacheKey(t *testing.T) {
	a := RankingCacheKey("idx-1", "Dev  Go\n sênior")
	b := RankingCacheKey("idx-1", "Dev Go sênior")
	assert.Equal(t, a, b, "空白差异不影响缓存键")
	assert.NotEqual(t, a, RankingCacheKey("idx-2", "Dev Go sênior"))
	assert.Regexp(t, `^adequa:ranking:result:idx-1:[0-9a-f]{64}$`, a)
	assert.Equal(t, "adequa:upload:lock:u1", UploadLockKey("u1"))
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn := BuildMySQLDSN(&config.MySQLConfig{Host: "db", Port: 3306, Username: "root", Password: "pw", Database: "adequa"})
	assert.Equal(t, "root:pw@tcp(db:3306)/adequa?charset=utf8mb4&parseTime=True&loc=UTC&timeout=10s", dsn)

	assert.Equal(t, logger.Silent, gormLogLevel(1))
	assert.Equal(t, logger.Warn, gormLogLevel(0))
}

func TestNewIndexBuiltOutbox(t *testing.T) {
	built := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := NewIndexBuiltOutbox(IndexBuiltMessage{IndexID: "idx-9", UserID: "u1", ResumeCount: 3, ChunkCount: 12, BuiltAt: built})
	require.NoError(t, err)

	assert.Equal(t, constants.OutboxAggregateIndex, msg.AggregateType)
	assert.Equal(t, "idx-9", msg.AggregateID)
	assert.Equal(t, constants.IndexEventsExchange, msg.TargetExchange)
	assert.Equal(t, constants.IndexBuiltRoutingKey, msg.TargetRoutingKey)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)

	var decoded IndexBuiltMessage
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
	assert.Equal(t, 3, decoded.ResumeCount)
	assert.True(t, built.Equal(decoded.BuiltAt))
}

// 需要真实的 Redis，设置 REDIS_TEST_ADDR 时运行
func TestRedisRankingCacheIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR 未设置，跳过Redis集成测试")
	}
	r, err := NewRedis(&config.RedisConfig{Address: addr})
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	jd := "Vaga teste " + time.Now().String()
	_, ok, err := r.GetRankingResult(ctx, "idx-it", jd)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetRankingResult(ctx, "idx-it", jd, &types.RankingResult{Query: jd, TotalCandidates: 2}, time.Minute))
	got, ok, err := r.GetRankingResult(ctx, "idx-it", jd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.TotalCandidates)

	lock, err := r.AcquireLock(ctx, UploadLockKey("it-user"), time.Minute)
	require.NoError(t, err)
	_, err = r.AcquireLock(ctx, UploadLockKey("it-user"), time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	released, err := r.ReleaseLock(ctx, UploadLockKey("it-user"), lock)
	require.NoError(t, err)
	assert.True(t, released)
}
