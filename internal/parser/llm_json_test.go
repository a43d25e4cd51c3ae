package parser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"代码块", "texto\n```json\n{\"a\": 1}\n```\nfim", `{"a": 1}`},
		{"前后有文字", `Resultado: {"a": {"b": 2}} obrigado`, `{"a": {"b": 2}}`},
		{"字符串内的花括号", `{"a": "x}y"} {"b": 1}`, `{"a": "x}y"}`},
		{"未配平", `{"a": {"b": 1}`, `{"a": {"b": 1}`},
		{"没有对象", "sem json", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.in))
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	raw := "{\"justificativa\": \"disse \"ótimo\" e saiu\nda sala\", \"nota\": 70}"
	var out map[string]any
	require.Error(t, json.Unmarshal([]byte(raw), &out))
	require.NoError(t, json.Unmarshal([]byte(sanitizeJSON(raw)), &out))
	assert.Equal(t, "disse \"ótimo\" e saiu\nda sala", out["justificativa"])
	assert.Equal(t, float64(70), out["nota"])
}

func TestParseScoreValue(t *testing.T) {
	v, ok := parseScoreValue(float64(84.6))
	assert.True(t, ok)
	assert.Equal(t, 85, v)

	v, ok = parseScoreValue("nota 7,5 de 10")
	assert.True(t, ok)
	assert.Equal(t, 8, v)

	_, ok = parseScoreValue("sem número")
	assert.False(t, ok)

	_, ok = parseScoreValue(true)
	assert.False(t, ok)

	v, ok = parseScoreValue(1e20)
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	v, ok = parseScoreValue("99999999999999999999")
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	v, ok = parseScoreValue("-12")
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	v, ok = parseScoreText("1" + strings.Repeat("0", 400))
	assert.True(t, ok)
	assert.Equal(t, 100, v)
}

func TestToStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "1"}, toStringList([]any{"a", " ", float64(1)}))
	assert.Equal(t, []string{"x", "y"}, toStringList("x | y |"))
	assert.Nil(t, toStringList(nil))
}

func TestStripBOM(t *testing.T) {
	assert.Equal(t, "{}", stripBOM("\uFEFF{}"))
}
