package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleChatModel_Generate(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"nota\": 80}"}}]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAICompatibleChatModel("sk-test", "gpt-test", srv.URL)
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sistema"),
		schema.UserMessage("usuário"),
	}, model.WithTemperature(0.2))
	require.NoError(t, err)

	assert.Equal(t, `{"nota": 80}`, resp.Content)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-6)
}

func TestOpenAICompatibleChatModel_StatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	m, err := NewOpenAICompatibleChatModel("sk-bad", "", srv.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("oi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAICompatibleChatModel_EmptyKey(t *testing.T) {
	_, err := NewOpenAICompatibleChatModel(" ", "", "")
	assert.Error(t, err)
}

func TestMockChatClient_Sequential(t *testing.T) {
	m := NewMockChatClientSequential([]MockResponse{{Content: "a"}, {Content: "b"}})
	ctx := context.Background()

	r1, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("1")})
	require.NoError(t, err)
	r2, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("2")})
	require.NoError(t, err)
	_, err = m.Generate(ctx, nil)

	assert.Equal(t, "a", r1.Content)
	assert.Equal(t, "b", r2.Content)
	assert.Error(t, err)
	assert.Equal(t, 3, m.CallCount())
}

func TestMockChatClient_Func(t *testing.T) {
	m := NewMockChatClientFunc(func(ctx context.Context, input []*schema.Message) (string, error) {
		return "eco: " + input[len(input)-1].Content, nil
	})
	resp, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "eco: x", resp.Content)
}
