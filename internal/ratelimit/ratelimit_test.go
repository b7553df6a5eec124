package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	now := time.Now()
	tb.now = func() time.Time { return now }
	tb.lastRefillTime = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "容量耗尽后应拒绝")

	// 60 QPM = 每秒1个令牌
	now = now.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// 补充不超过容量
	now = now.Add(time.Hour)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(6000, 100).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("invalid api key")
	})
	assert.EqualError(t, err, "invalid api key")
	assert.Equal(t, 1, calls, "不可重试错误只调用一次")

	calls = 0
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, calls, "首次调用加3次重试")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(errors.New("Error 503, Status: UNAVAILABLE")))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(errors.New("bad request")))
}

type countingModel struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (m *countingModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (m *countingModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestRateLimitedModelRetries(t *testing.T) {
	inner := &countingModel{errs: []error{errors.New("timeout"), nil}}
	limited := NewLLMWithRateLimit(inner, 6000, 2, time.Millisecond)

	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 2, inner.calls)
}
