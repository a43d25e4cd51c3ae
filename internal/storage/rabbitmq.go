package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"adequa-rag/internal/config"
	"adequa-rag/internal/constants"
)

// Publisher outbox 中继使用的发布接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// RabbitMQ 索引事件的发布和消费
type RabbitMQ struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQConfig

	// 发布通道，由 publishMu 保护
	publishMu sync.Mutex
	pubCh     *amqp.Channel

	logger *log.Logger
}

var _ Publisher = (*RabbitMQ)(nil)

// NewRabbitMQ 连接 RabbitMQ
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger *log.Logger) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}

	logger.Printf("成功连接到RabbitMQ服务器")
	return &RabbitMQ{conn: conn, cfg: cfg, pubCh: ch, logger: logger}, nil
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	r.publishMu.Lock()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	r.publishMu.Unlock()
	return r.conn.Close()
}

// SetupIndexTopology 声明索引事件交换机、预热队列和绑定
func (r *RabbitMQ) SetupIndexTopology() error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(constants.IndexEventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}
	if _, err := ch.QueueDeclare(constants.IndexWarmupQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}
	if err := ch.QueueBind(constants.IndexWarmupQueue, constants.IndexBuiltRoutingKey, constants.IndexEventsExchange, false, nil); err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}
	r.logger.Printf("已绑定队列 %s 到exchange %s，路由键: %s",
		constants.IndexWarmupQueue, constants.IndexEventsExchange, constants.IndexBuiltRoutingKey)
	return nil
}

// PublishMessage 发布消息到exchange；通道失效时重建一次
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if r.pubCh == nil || r.pubCh.IsClosed() {
		ch, err := r.conn.Channel()
		if err != nil {
			return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
		}
		r.pubCh = ch
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	return r.pubCh.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		Body:         message,
		Timestamp:    time.Now(),
	})
}

// Consume 在独立通道上消费队列直到 ctx 结束；handler 返回 false 时拒绝并重新入队
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, handler func(context.Context, []byte) bool) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	defer ch.Close()

	prefetch := r.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("注册消费者失败: %w", err)
	}

	r.logger.Printf("RabbitMQ消费者已启动，队列: %s, 预取数量: %d", queueName, prefetch)
	defer r.logger.Printf("RabbitMQ消费者已停止: %s", queueName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("RabbitMQ通道已关闭")
			}
			if handler(ctx, d.Body) {
				if err := d.Ack(false); err != nil {
					r.logger.Printf("WARN: 确认消息失败: %v", err)
				}
			} else if err := d.Nack(false, true); err != nil {
				r.logger.Printf("WARN: 拒绝消息失败: %v", err)
			}
		}
	}
}
