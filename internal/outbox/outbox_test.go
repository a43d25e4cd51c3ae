package outbox

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"adequa-rag/internal/indexer"
	"adequa-rag/internal/storage/models"
)

func TestApplyPublishResult(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok := &models.OutboxMessage{Status: models.OutboxStatusPending, ErrorMessage: "old"}
	applyPublishResult(ok, nil, now)
	assert.Equal(t, models.OutboxStatusSent, ok.Status)
	assert.Equal(t, now, *ok.ProcessedAt)
	assert.Empty(t, ok.ErrorMessage)

	failing := &models.OutboxMessage{Status: models.OutboxStatusPending}
	for i := 1; i < maxRetryCount; i++ {
		applyPublishResult(failing, errors.New("channel closed"), now)
		assert.Equal(t, models.OutboxStatusPending, failing.Status)
		assert.Equal(t, i, failing.RetryCount)
	}
	applyPublishResult(failing, errors.New("channel closed"), now)
	assert.Equal(t, models.OutboxStatusFailed, failing.Status)
	assert.Equal(t, "channel closed", failing.ErrorMessage)
	assert.Nil(t, failing.ProcessedAt)
}

type fakeWarmer struct {
	err    error
	warmed []string
}

func (f *fakeWarmer) Warm(ctx context.Context, id string) error {
	f.warmed = append(f.warmed, id)
	return f.err
}

func TestWarmupConsumerHandle(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		ack     bool
		touched bool
	}{
		{"warmed", `{"index_id":"20260101000000-abcdefabcdef","resume_count":2}`, nil, true, true},
		{"garbage", `not json`, nil, true, false},
		{"missing id", `{"user_id":"u"}`, nil, true, false},
		{"index gone", `{"index_id":"x"}`, &indexer.IndexNotFoundError{IndexID: "x"}, true, true},
		{"transient", `{"index_id":"x"}`, errors.New("minio unavailable"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := &fakeWarmer{err: tt.err}
			c := NewWarmupConsumer(w, log.New(&buf, "", 0))
			assert.Equal(t, tt.ack, c.Handle(context.Background(), []byte(tt.body)))
			assert.Equal(t, tt.touched, len(w.warmed) == 1)
		})
	}
}
