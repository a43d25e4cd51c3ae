package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/pkg/agent"
)

const testJobDescription = "Desenvolvedor Go sênior com experiência em Kubernetes e PostgreSQL, trabalho remoto."

func TestIsDegenerateJobDescription(t *testing.T) {
	assert.True(t, IsDegenerateJobDescription(""))
	assert.True(t, IsDegenerateJobDescription("dev go"))
	assert.True(t, IsDegenerateJobDescription("  TESTE  "))
	assert.False(t, IsDegenerateJobDescription(testJobDescription))
}

func TestScoreDegenerateJobDescriptionSkipsModel(t *testing.T) {
	mock := agent.NewMockChatClient(`{"nota": 90}`, nil)
	scorer := NewCandidateScorer(mock, nil)

	a, err := scorer.Score(context.Background(), "currículo", "teste")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, NameNotInformed, a.CandidateName)
	assert.True(t, strings.HasPrefix(a.Justification, "ERRO:"))
	assert.Equal(t, 0, mock.CallCount())
}

func TestScoreParsesJSON(t *testing.T) {
	reply := "Segue a análise:\n```json\n" + `{
  "candidato": "Maria Souza",
  "nota": 82,
  "pontos_fortes": ["Go", "Kubernetes"],
  "pontos_fracos": ["PostgreSQL"],
  "justificativa": "Boa aderência ao stack pedido.",
  "dicas_de_melhoria": ["Detalhar projetos com PostgreSQL"]
}` + "\n```"
	mock := agent.NewMockChatClient(reply, nil)
	scorer := NewCandidateScorer(mock, nil)

	a, err := scorer.Score(context.Background(), "Maria Souza - Go, Kubernetes", testJobDescription)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", a.CandidateName)
	assert.Equal(t, 82, a.Score)
	assert.Equal(t, []string{"Go", "Kubernetes"}, a.Strengths)
	assert.Equal(t, []string{"PostgreSQL"}, a.Weaknesses)
	assert.Equal(t, "Boa aderência ao stack pedido.", a.Justification)
	assert.Equal(t, []string{"Detalhar projetos com PostgreSQL"}, a.ImprovementTips)

	// 系统提示 + 用户提示，用户提示里带着岗位和简历
	msgs := mock.GetReceivedMessages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0], 2)
	assert.Equal(t, schema.System, msgs[0][0].Role)
	assert.Contains(t, msgs[0][1].Content, testJobDescription)
}

func TestScoreNormalization(t *testing.T) {
	longText := strings.Repeat("experiência relevante ", 20)
	tests := []struct {
		name      string
		reply     string
		candidate string
		want      int
	}{
		{"高分无夸张措辞下调", `{"nota": 98, "justificativa": "Atende aos requisitos."}`, "cv", 85},
		{"高分有夸张措辞保留", `{"nota": 98, "justificativa": "Perfil excepcional para a vaga."}`, "cv", 98},
		{"超过100先截断再下调", `{"nota": 150, "justificativa": "ok"}`, "cv", 85},
		{"低分但文本充足上调", `{"nota": 2, "justificativa": "Sem aderência."}`, longText, 15},
		{"低分且文本很短保留", `{"nota": 3, "justificativa": "Vazio."}`, "cv", 3},
		{"负数截断为0", `{"nota": -20, "justificativa": "x"}`, "cv", 0},
		{"字符串分数", `{"nota": "85/100", "justificativa": "bom"}`, "cv", 85},
		{"95不调整", `{"nota": 95, "justificativa": "bom"}`, "cv", 95},
		{"超大浮点截断为100", `{"nota": 1e20, "justificativa": "Perfil excepcional."}`, "cv", 100},
		{"超大字符串截断为100", `{"nota": "99999999999999999999", "justificativa": "Perfil excepcional."}`, "cv", 100},
		{"超大行标记截断为100", "NOME: Ana\nNOTA: 99999999999999999999\nJUSTIFICATIVA: Perfil excepcional.", "cv", 100},
		{"超大负数截断为0", `{"nota": -1e20, "justificativa": "x"}`, "cv", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewCandidateScorer(agent.NewMockChatClient(tt.reply, nil), nil)
			a, err := scorer.Score(context.Background(), tt.candidate, testJobDescription)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Score)
		})
	}
}

func TestScoreCustomThresholds(t *testing.T) {
	th := DefaultScoringThresholds()
	th.HighCap = 90
	th.HighCapTo = 80
	scorer := NewCandidateScorer(agent.NewMockChatClient(`{"nota": 92, "justificativa": "bom"}`, nil), nil,
		WithScoringThresholds(th))

	a, err := scorer.Score(context.Background(), "cv", testJobDescription)
	require.NoError(t, err)
	assert.Equal(t, 80, a.Score)
}

func TestScoreLineFallback(t *testing.T) {
	reply := `**NOME:** Carlos Lima
NOTA: 72/100
FORTES: Go | Docker
FRACOS: Kubernetes
JUSTIFICATIVA: A nota reflete boa base em Go, mas pouca vivência com Kubernetes.
DICAS: Certificação CKA | Projetos open source`
	scorer := NewCandidateScorer(agent.NewMockChatClient(reply, nil), nil)

	a, err := scorer.Score(context.Background(), "cv", testJobDescription)
	require.NoError(t, err)
	assert.Equal(t, "Carlos Lima", a.CandidateName)
	assert.Equal(t, 72, a.Score)
	assert.Equal(t, []string{"Go", "Docker"}, a.Strengths)
	assert.Equal(t, []string{"Kubernetes"}, a.Weaknesses)
	assert.Equal(t, []string{"Certificação CKA", "Projetos open source"}, a.ImprovementTips)
	assert.Contains(t, a.Justification, "pouca vivência")
}

func TestParseScorerResponseDefaults(t *testing.T) {
	a := ParseScorerResponse("resposta livre sem marcadores")
	assert.Equal(t, NameUnknown, a.CandidateName)
	assert.Equal(t, 50, a.Score)
	assert.Equal(t, "resposta livre sem marcadores", a.Justification)
	assert.NotNil(t, a.Strengths)
	assert.NotNil(t, a.Weaknesses)

	// JSON 没有分数时交给行解析
	a = ParseScorerResponse("{\"candidato\": \"Ana\"}\nNOTA: 61")
	assert.Equal(t, 61, a.Score)

	// 正文里的 "nota" 不被当成分数
	a = ParseScorerResponse("Observação importante sobre a nota final do candidato: ele tem 3 anos de experiência\nNOTA: 70")
	assert.Equal(t, 70, a.Score)
}

func TestScoreModelFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"认证失败给中性分", errors.New("请求失败，状态 401 Unauthorized: invalid api key"), 60},
		{"其他错误", errors.New("connection reset by peer"), 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewCandidateScorer(agent.NewMockChatClient("", tt.err), nil)
			a, err := scorer.Score(context.Background(), "cv", testJobDescription)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Score)
			assert.Equal(t, NameUnknown, a.CandidateName)
			assert.NotEmpty(t, a.Justification)
		})
	}
}

func TestScoreEmptyReplyUsesErrorScore(t *testing.T) {
	scorer := NewCandidateScorer(agent.NewMockChatClient("   ", nil), nil)
	a, err := scorer.Score(context.Background(), "cv", testJobDescription)
	require.NoError(t, err)
	assert.Equal(t, 40, a.Score)
}

func TestScoreParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := agent.NewMockChatClientFunc(func(ctx context.Context, _ []*schema.Message) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	scorer := NewCandidateScorer(mock, nil)

	a, err := scorer.Score(ctx, "cv", testJobDescription)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, context.Canceled)
}
