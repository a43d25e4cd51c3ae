package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"adequa-rag/internal/constants"
	"adequa-rag/internal/storage/models"
)

// IndexBuiltMessage 索引构建完成事件，消费者据此预加载索引
type IndexBuiltMessage struct {
	IndexID     string    `json:"index_id"`
	UserID      string    `json:"user_id"`
	ResumeCount int       `json:"resume_count"`
	ChunkCount  int       `json:"chunk_count"`
	BuiltAt     time.Time `json:"built_at"`
}

// NewIndexBuiltOutbox 生成待写入 outbox 表的事件
func NewIndexBuiltOutbox(msg IndexBuiltMessage) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal index.built payload: %w", err)
	}
	return &models.OutboxMessage{
		AggregateType:    constants.OutboxAggregateIndex,
		AggregateID:      msg.IndexID,
		EventType:        constants.IndexBuiltRoutingKey,
		Payload:          string(payload),
		TargetExchange:   constants.IndexEventsExchange,
		TargetRoutingKey: constants.IndexBuiltRoutingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
