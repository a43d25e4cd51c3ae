package outbox // 发件箱模式：业务事务写入 outbox 表，中继异步发布到消息队列

import (
	"context"
	"io"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"adequa-rag/internal/storage"
	"adequa-rag/internal/storage/models"
	"adequa-rag/internal/tracing"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询 outbox 表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息数
	maxRetryCount          = 5               // 超过后标记为 FAILED
)

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       storage.Publisher
	logger          *log.Logger
	pollingInterval time.Duration
	batchSize       int
	tracer          trace.Tracer
	now             func() time.Time
}

// RelayOption 是 MessageRelay 的配置选项
type RelayOption func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批数量
func WithBatchSize(n int) RelayOption {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewMessageRelay 创建中继
func NewMessageRelay(db *gorm.DB, publisher storage.Publisher, logger *log.Logger, opts ...RelayOption) *MessageRelay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		tracer:          otel.Tracer("adequa-rag/outbox"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 轮询直到 ctx 结束
func (r *MessageRelay) Run(ctx context.Context) {
	r.logger.Println("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("MessageRelay stopped.")
			return
		case <-ticker.C:
			if err := r.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Printf("处理outbox消息失败: %v", err)
			}
		}
	}
}

// ProcessPending 取一批待发布消息并发布
// FOR UPDATE SKIP LOCKED 让多个实例不会处理同一条消息
func (r *MessageRelay) ProcessPending(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}
	// 空轮询不创建 span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))))
	defer span.End()

	for i := range messages {
		msg := &messages[i]
		pubErr := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if pubErr != nil {
			tracing.RecordError(span, pubErr, tracing.ErrorTypeRabbitMQ)
			r.logger.Printf("发布消息失败 ID %d (%s %s): %v, 重试次数: %d",
				msg.ID, msg.AggregateType, msg.AggregateID, pubErr, msg.RetryCount+1)
		}
		applyPublishResult(msg, pubErr, r.now())

		// 更新失败时整个事务回滚，消息在下一轮重新处理
		if err := tx.Save(msg).Error; err != nil {
			return err
		}
	}
	return tx.Commit().Error
}

// applyPublishResult 根据发布结果更新消息状态
func applyPublishResult(msg *models.OutboxMessage, pubErr error, now time.Time) {
	if pubErr == nil {
		msg.Status = models.OutboxStatusSent
		msg.ProcessedAt = &now
		msg.ErrorMessage = ""
		return
	}
	msg.RetryCount++
	msg.ErrorMessage = pubErr.Error()
	if msg.RetryCount >= maxRetryCount {
		msg.Status = models.OutboxStatusFailed
	}
}
