package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"go.opentelemetry.io/otel/trace"

	"adequa-rag/internal/constants"
	"adequa-rag/internal/indexer"
	"adequa-rag/internal/storage"
	"adequa-rag/internal/tracing"
)

// Warmer 预加载索引
type Warmer interface {
	Warm(ctx context.Context, indexID string) error
}

// WarmupConsumer 收到 index.built 事件后把索引加载进句柄缓存
type WarmupConsumer struct {
	warmer Warmer
	logger *log.Logger
}

// NewWarmupConsumer 创建预热消费者
func NewWarmupConsumer(warmer Warmer, logger *log.Logger) *WarmupConsumer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &WarmupConsumer{warmer: warmer, logger: logger}
}

// Handle 处理一条消息；返回 false 表示需要重新入队
// 无法解析的消息和不存在的索引直接确认，避免反复投递
func (c *WarmupConsumer) Handle(ctx context.Context, body []byte) bool {
	var msg storage.IndexBuiltMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.IndexID == "" {
		c.logger.Printf("WARN: 丢弃无法解析的索引事件: %s", string(body))
		return true
	}

	err := c.warmer.Warm(ctx, msg.IndexID)
	switch {
	case err == nil:
		c.logger.Printf("索引 %s 已预热 (%d 份简历)", msg.IndexID, msg.ResumeCount)
		return true
	case errors.Is(err, indexer.ErrIndexNotFound):
		c.logger.Printf("WARN: 预热的索引不存在: %s", msg.IndexID)
		return true
	default:
		c.logger.Printf("预热索引 %s 失败: %v", msg.IndexID, err)
		tracing.RecordNack(trace.SpanFromContext(ctx), msg.IndexID, err.Error())
		return false
	}
}

// Run 消费预热队列直到 ctx 结束
func (c *WarmupConsumer) Run(ctx context.Context, mq *storage.RabbitMQ) error {
	return mq.Consume(ctx, constants.IndexWarmupQueue, c.Handle)
}
