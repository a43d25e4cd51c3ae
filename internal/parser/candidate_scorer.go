package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"adequa-rag/internal/types"
	"adequa-rag/pkg/ratelimit"
)

// 候选人姓名的占位值
const (
	NameUnknown     = "Desconhecido"
	NameNotInformed = "Não informado"
)

// 岗位描述过于简单时的提示
const insufficientJobDescription = "ERRO: A descrição da vaga é insuficiente para gerar uma análise justa. Por favor, forneça uma descrição mais detalhada da vaga."

var placeholderJobDescriptions = map[string]bool{
	"teste": true, "test": true, "abc": true, "exemplo": true, "example": true, "sample": true,
}

// 认为 >95 分合理的措辞
var superlativeWords = []string{
	"excepcional", "perfeito", "perfeita", "ideal", "extraordinário", "extraordinaria", "extraordinária",
	"excelente", "impecável", "outstanding", "exceptional", "perfect", "excellent",
}

// ScoringThresholds 分数归一化参数
type ScoringThresholds struct {
	HighCap          int // 高于此分且理由中没有夸张措辞时下调
	HighCapTo        int
	LowFloor         int // 低于此分且文本充足时上调
	LowFloorTo       int
	MinTextLength    int // 视为"文本充足"的字符数
	AuthFailureScore int // 认证失败时的中性分
	ErrorScore       int // 其他失败时的分数
}

// DefaultScoringThresholds 默认阈值
func DefaultScoringThresholds() ScoringThresholds {
	return ScoringThresholds{
		HighCap:          95,
		HighCapTo:        85,
		LowFloor:         5,
		LowFloorTo:       15,
		MinTextLength:    100,
		AuthFailureScore: 60,
		ErrorScore:       40,
	}
}

// CandidateScorer 用大模型给候选人打分
type CandidateScorer struct {
	llmModel    model.ToolCallingChatModel
	thresholds  ScoringThresholds
	callTimeout time.Duration
	temperature float32
	logger      *log.Logger
}

// CandidateScorerOption 是评分器的配置选项
type CandidateScorerOption func(*CandidateScorer)

// WithScoringThresholds 设置归一化阈值
func WithScoringThresholds(t ScoringThresholds) CandidateScorerOption {
	return func(s *CandidateScorer) { s.thresholds = t }
}

// WithScorerCallTimeout 设置单次模型调用超时
func WithScorerCallTimeout(d time.Duration) CandidateScorerOption {
	return func(s *CandidateScorer) { s.callTimeout = d }
}

// NewCandidateScorer 创建评分器
func NewCandidateScorer(llmModel model.ToolCallingChatModel, logger *log.Logger, opts ...CandidateScorerOption) *CandidateScorer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &CandidateScorer{
		llmModel:    llmModel,
		thresholds:  DefaultScoringThresholds(),
		callTimeout: 90 * time.Second,
		temperature: 0.1,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const scorerSystemPrompt = `Você é um recrutador especialista em triagem técnica (ATS). Sua tarefa é comparar um currículo estritamente com a descrição de vaga fornecida.

REGRAS OBRIGATÓRIAS:
1. ANÁLISE ESTRITA: avalie o candidato apenas com base nos requisitos EXPLICITAMENTE escritos na descrição da vaga. Não assuma nem infira requisitos que não estejam no texto.
2. PROIBIDO ALUCINAR: se a vaga não pede uma competência, ela não pode aparecer como ponto fraco.
3. JUSTIFICATIVA: baseie a justificativa apenas no match entre o currículo e a vaga.
4. Responda somente com um objeto JSON válido, sem texto fora dele.`

const scorerUserTemplate = `DESCRIÇÃO DA VAGA:
%s

CURRÍCULO PARA ANALISAR:
%s

RESPOSTA ESTRUTURADA (JSON):
{
  "candidato": "Nome encontrado no currículo",
  "nota": 0-100,
  "pontos_fortes": ["competência1", "competência2"],
  "pontos_fracos": ["falta1", "falta2"],
  "justificativa": "análise baseada apenas no match entre currículo e vaga",
  "dicas_de_melhoria": ["dica prática 1", "dica 2", "dica 3"]
}

As "dicas_de_melhoria" devem ser sugestões objetivas e acionáveis para o candidato melhorar o currículo ou aumentar as chances para esta vaga.
Se não conseguir produzir JSON, responda em linhas no formato:
NOME: ...
NOTA: ...
FORTES: item1 | item2
FRACOS: item1 | item2
JUSTIFICATIVA: ...
DICAS: dica1 | dica2`

// IsDegenerateJobDescription 岗位描述少于3个词或是占位文本
func IsDegenerateJobDescription(jd string) bool {
	trimmed := strings.TrimSpace(jd)
	if len(strings.Fields(trimmed)) < 3 {
		return true
	}
	return placeholderJobDescriptions[strings.ToLower(trimmed)]
}

// Score 评估候选人文本与岗位描述的匹配度
// 只有父 ctx 被取消或超时才返回错误；模型失败时返回兜底分数
func (s *CandidateScorer) Score(ctx context.Context, candidateText, jobDescription string) (*types.CandidateAnalysis, error) {
	if IsDegenerateJobDescription(jobDescription) {
		return &types.CandidateAnalysis{
			CandidateName: NameNotInformed,
			Score:         0,
			Strengths:     []string{},
			Weaknesses:    []string{},
			Justification: insufficientJobDescription,
		}, nil
	}

	if s.llmModel == nil {
		return nil, fmt.Errorf("CandidateScorer: llmModel is not initialized")
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(scorerSystemPrompt),
		einoschema.UserMessage(fmt.Sprintf(scorerUserTemplate, jobDescription, candidateText)),
	}

	callCtx, cancel := s.withCallTimeout(ctx)
	response, err := s.llmModel.Generate(callCtx, messages, model.WithTemperature(s.temperature))
	cancel()

	// 父 ctx 结束时整个排名请求作废，不产生兜底结果
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil && (response == nil || strings.TrimSpace(response.Content) == "") {
		err = errors.New("LLM returned empty response")
	}
	if err != nil {
		s.logger.Printf("WARN: LLM 评分失败，使用兜底分数: %v", err)
		return s.failureAnalysis(err), nil
	}

	analysis := ParseScorerResponse(response.Content)
	s.normalize(analysis, candidateText)
	return analysis, nil
}

func (s *CandidateScorer) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

// failureAnalysis 模型调用失败时的兜底结果，候选人仍然参与排名
func (s *CandidateScorer) failureAnalysis(err error) *types.CandidateAnalysis {
	if ratelimit.IsAuthError(err) {
		return &types.CandidateAnalysis{
			CandidateName: NameUnknown,
			Score:         s.thresholds.AuthFailureScore,
			Strengths:     []string{},
			Weaknesses:    []string{},
			Justification: "Falha de autenticação com o provedor de IA (verifique a chave de API). Pontuação neutra atribuída.",
		}
	}
	return &types.CandidateAnalysis{
		CandidateName: NameUnknown,
		Score:         s.thresholds.ErrorScore,
		Strengths:     []string{},
		Weaknesses:    []string{},
		Justification: fmt.Sprintf("Erro ao processar a análise do candidato: %v", err),
	}
}

// normalize 限制分数区间并修正明显失真的极端分数
func (s *CandidateScorer) normalize(a *types.CandidateAnalysis, candidateText string) {
	a.Score = clampScore(a.Score)
	t := s.thresholds

	if a.Score > t.HighCap && !hasSuperlative(a.Justification) {
		s.logger.Printf("分数 %d 缺少支撑措辞，调整为 %d", a.Score, t.HighCapTo)
		a.Score = t.HighCapTo
	}
	if a.Score < t.LowFloor &&
		(utf8Len(candidateText) > t.MinTextLength || utf8Len(a.Justification) > t.MinTextLength) {
		s.logger.Printf("分数 %d 与文本量不符，调整为 %d", a.Score, t.LowFloorTo)
		a.Score = t.LowFloorTo
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func hasSuperlative(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range superlativeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func utf8Len(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}

// ParseScorerResponse 两级解析：先 JSON，失败后按行标记解析
// 分数在此处只做 0-100 截断
func ParseScorerResponse(text string) *types.CandidateAnalysis {
	text = stripBOM(text)
	if a, ok := parseScorerJSON(text); ok {
		return a
	}
	return parseScorerLines(text)
}

func parseScorerJSON(text string) (*types.CandidateAnalysis, bool) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, false
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		if err := json.Unmarshal([]byte(sanitizeJSON(raw)), &data); err != nil {
			return nil, false
		}
	}

	get := func(keys ...string) (any, bool) {
		for _, k := range keys {
			if v, ok := data[k]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}

	scoreVal, hasScore := get("nota", "score", "pontuacao", "pontuação")
	if !hasScore {
		// 没有分数的 JSON 不可信，交给行解析
		return nil, false
	}
	score, ok := parseScoreValue(scoreVal)
	if !ok {
		return nil, false
	}

	a := &types.CandidateAnalysis{
		CandidateName: NameNotInformed,
		Score:         clampScore(score),
		Justification: text,
	}
	if v, ok := get("candidato", "nome", "candidate", "name"); ok {
		if name := strings.TrimSpace(toText(v)); name != "" {
			a.CandidateName = name
		}
	}
	if v, ok := get("pontos_fortes", "strengths"); ok {
		a.Strengths = toStringList(v)
	}
	if v, ok := get("pontos_fracos", "weaknesses"); ok {
		a.Weaknesses = toStringList(v)
	}
	if v, ok := get("justificativa", "justification"); ok {
		if j := strings.TrimSpace(toText(v)); j != "" {
			a.Justification = j
		}
	}
	if v, ok := get("dicas_de_melhoria", "improvement_tips"); ok {
		a.ImprovementTips = toStringList(v)
	}
	ensureLists(a)
	return a, true
}

// parseScorerLines 行标记解析：只看每行第一个冒号之前的键，避免正文里出现 "nota" 被当成分数
func parseScorerLines(text string) *types.CandidateAnalysis {
	a := &types.CandidateAnalysis{
		CandidateName: NameUnknown,
		Score:         50,
		Justification: text,
	}

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := splitMarkerLine(line)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(key, "NOME") || strings.Contains(key, "CANDIDATO"):
			if value != "" {
				a.CandidateName = value
			}
		case strings.Contains(key, "NOTA") || strings.Contains(key, "SCORE") || strings.Contains(key, "PONTUA"):
			if score, ok := parseScoreText(value); ok {
				a.Score = clampScore(score)
			}
		case strings.Contains(key, "FORTES"):
			a.Strengths = splitPipeList(value)
		case strings.Contains(key, "FRACOS"):
			a.Weaknesses = splitPipeList(value)
		case strings.Contains(key, "JUSTIFICATIVA"):
			if value != "" {
				a.Justification = value
			}
		case strings.Contains(key, "DICAS") || strings.Contains(key, "MELHORIA"):
			a.ImprovementTips = splitPipeList(value)
		}
	}
	ensureLists(a)
	return a
}

// splitMarkerLine 拆出 "KEY: value"；键去掉列表符号和 markdown 加粗后转大写
func splitMarkerLine(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	key = strings.TrimLeft(key, "-*•# \t")
	key = strings.ReplaceAll(key, "*", "")
	key = strings.TrimSpace(key)
	// 过长的"键"其实是正文
	if key == "" || len([]rune(key)) > 30 {
		return "", "", false
	}
	value := strings.TrimSpace(strings.ReplaceAll(line[idx+1:], "**", ""))
	return strings.ToUpper(key), value, true
}

func ensureLists(a *types.CandidateAnalysis) {
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.Weaknesses == nil {
		a.Weaknesses = []string{}
	}
}
