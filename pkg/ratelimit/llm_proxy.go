package ratelimit

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedLLMModel 对LLM模型的调用进行限流、单次超时和重试的代理
type RateLimitedLLMModel struct {
	original    model.ToolCallingChatModel
	rateLimiter *TokenBucket
	callTimeout time.Duration // 单次调用超时，0 表示只受父 ctx 约束
}

// NewRateLimitedLLMModel 创建一个新的限流LLM模型代理
func NewRateLimitedLLMModel(original model.ToolCallingChatModel, qpm int) *RateLimitedLLMModel {
	return &RateLimitedLLMModel{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2), // 容量设为QPM的一半，允许一定的突发流量
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedLLMModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedLLMModel {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// WithCallTimeout 设置单次调用超时
func (rl *RateLimitedLLMModel) WithCallTimeout(d time.Duration) *RateLimitedLLMModel {
	rl.callTimeout = d
	return rl
}

func (rl *RateLimitedLLMModel) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rl.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, rl.callTimeout)
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := rl.attemptContext(ctx)
		defer cancel()
		var genErr error
		response, genErr = rl.original.Generate(callCtx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法；流的读取不受单次超时约束，只限制建立连接
func (rl *RateLimitedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// WithTools 代理WithTools方法
func (rl *RateLimitedLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := rl.original.WithTools(tools)
	if err != nil {
		return nil, err
	}

	// 新代理共享同一个令牌桶
	return &RateLimitedLLMModel{
		original:    newModel,
		rateLimiter: rl.rateLimiter,
		callTimeout: rl.callTimeout,
	}, nil
}

// NewLLMWithRateLimit 从配置直接构造带限流、超时和重试的模型
func NewLLMWithRateLimit(original model.ToolCallingChatModel, qpm int, maxRetries int, retryWaitTime, callTimeout time.Duration) model.ToolCallingChatModel {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryWaitTime <= 0 {
		retryWaitTime = 2 * time.Second
	}

	return NewRateLimitedLLMModel(original, qpm).
		WithRetryPolicy(retryWaitTime, maxRetries).
		WithCallTimeout(callTimeout)
}
