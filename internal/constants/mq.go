package constants

// 消息队列相关常量
const (
	// IndexEventsExchange 索引事件交换机
	IndexEventsExchange = "adequa.index.events"
	// IndexBuiltRoutingKey 索引构建完成事件
	IndexBuiltRoutingKey = "index.built"
	// IndexWarmupQueue 预热索引句柄缓存的队列
	IndexWarmupQueue = "adequa.index.warmup"

	// OutboxAggregateIndex outbox 聚合类型: 向量索引
	OutboxAggregateIndex = "vector_index"
)
