package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", Shorten("abc", 10))
	assert.Equal(t, "ab", Shorten("abcdef", 2))
	assert.Equal(t, "ab...yz", Shorten("abcdefghijklmnopqrstuvwxyz", 7))
	assert.Len(t, []rune(Shorten("çãoçãoçãoçãoçãoção", 9)), 9)
}

func TestClipByKind(t *testing.T) {
	long := strings.Repeat("x", 600)
	assert.Len(t, Clip(KindSQL, long), 499)
	assert.Len(t, Clip(KindRedisKey, long), 99)
	assert.Len(t, Clip(Kind(99), long), 199)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "*", Mask("A"))
	assert.Equal(t, "L*", Mask("Li"))
	assert.Equal(t, "A*a", Mask("Ana"))
	assert.Equal(t, "ma*************om", Mask("maria@exemplo.com"))
}

func TestStringAttribute(t *testing.T) {
	assert.Equal(t, "A*a", String("candidate.nome", "Ana").Value.AsString())
	assert.Equal(t, "plain", String("index.id", "plain").Value.AsString())
}

func TestRecordErrorClassifiesContextErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "op")
	RecordError(span, fmt.Errorf("score: %w", context.DeadlineExceeded), ErrorTypeLLM)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var errType string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "error.type" {
			errType = kv.Value.AsString()
		}
	}
	assert.Equal(t, string(ErrorTypeTimeout), errType)
}

func TestRecordErrorNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("x"), ErrorTypeInternal)
		RecordHTTPError(nil, nil, 500)
		RecordNack(nil, "id", "")
	})
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), ProviderConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
