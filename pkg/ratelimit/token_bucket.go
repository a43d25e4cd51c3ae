package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket 令牌桶限流器，底层使用 x/time/rate
type TokenBucket struct {
	limiter       *rate.Limiter
	retryWaitTime time.Duration // 首次重试等待时间，之后逐次翻倍
	maxRetries    int           // 最大重试次数
}

// NewTokenBucket 创建一个新的令牌桶限流器
// qpm<=0 表示不限流；capacity<=0 时容量取 QPM 的一半
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}

	limit := rate.Inf
	if qpm > 0 {
		limit = rate.Limit(float64(qpm) / 60.0) // 转换为每秒速率
	}

	return &TokenBucket{
		limiter:       rate.NewLimiter(limit, capacity),
		retryWaitTime: 2 * time.Second,
		maxRetries:    2,
	}
}

// WithRetryPolicy 设置重试策略
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int) *TokenBucket {
	tb.retryWaitTime = waitTime
	tb.maxRetries = maxRetries
	return tb
}

// Allow 判断是否允许通过一个请求，消耗一个令牌
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait 等待直到有令牌可用
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// RetryWithBackoff 使用退避策略执行函数并在需要时重试
// 每次尝试前都先取令牌；父 ctx 结束时立即返回 ctx.Err()
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error

	for retry := 0; retry <= tb.maxRetries; retry++ {
		if err = tb.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		err = fn()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryableError(err) || retry >= tb.maxRetries {
			return err
		}

		backoffTime := tb.retryWaitTime * time.Duration(1<<uint(retry))

		timer := time.NewTimer(backoffTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// IsRetryableError 判断错误是否可重试；认证失败不重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	if IsAuthError(err) {
		return false
	}
	return contains(strings.ToLower(errStr), []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"eof",
		"connection refused",
		"429",
		"too many requests",
		"rate limit",
		"resource exhausted",
		"no such host",
		"503",
		"502",
	})
}

// IsAuthError 判断错误是否来自认证失败 (HTTP 401 或等价信息)
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return contains(strings.ToLower(err.Error()), []string{
		"401",
		"unauthorized",
		"invalid api key",
		"incorrect api key",
		"api key not valid",
		"authentication",
	})
}

// contains 检查字符串是否包含列表中的任何一个子串
func contains(s string, substrs []string) bool {
	for _, substr := range substrs {
		if substr != "" && strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
