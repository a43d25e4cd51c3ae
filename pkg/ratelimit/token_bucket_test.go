package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/pkg/agent"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("API 请求失败，状态 429 Too Many Requests"), true},
		{errors.New("read: connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{errors.New("API 请求失败，状态 401 Unauthorized"), false},
		{errors.New("invalid json"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(errors.New("status 401")))
	assert.True(t, IsAuthError(errors.New("Invalid API key")))
	assert.False(t, IsAuthError(errors.New("status 500")))
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(0, 0).WithRetryPolicy(time.Millisecond, 2)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("status 401")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "认证错误不重试")
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	tb := NewTokenBucket(0, 0).WithRetryPolicy(time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())

	err := tb.RetryWithBackoff(ctx, func() error {
		cancel()
		return errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedModelAppliesCallTimeout(t *testing.T) {
	slow := agent.NewMockChatClientFunc(func(ctx context.Context, _ []*schema.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := NewLLMWithRateLimit(slow, 0, 0, time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("oi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
