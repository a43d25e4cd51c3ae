package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"adequa-rag/internal/types"
)

// JobLocation 岗位地点的分类结果，一次排名请求只计算一次
type JobLocation struct {
	Remote   bool
	Location *string
	// Failed 为 true 时岗位分类失败，所有候选人都按远程处理
	Failed bool
}

// LocationAnalyzer 判断候选人与岗位的地点是否兼容
type LocationAnalyzer struct {
	llmModel    model.ToolCallingChatModel
	cities      []string
	callTimeout time.Duration
	logger      *log.Logger
}

// LocationAnalyzerOption 是地点分析器的配置选项
type LocationAnalyzerOption func(*LocationAnalyzer)

// WithFallbackCities 设置岗位地点的关键词兜底列表，按顺序匹配
func WithFallbackCities(cities []string) LocationAnalyzerOption {
	return func(a *LocationAnalyzer) {
		if len(cities) > 0 {
			a.cities = cities
		}
	}
}

// WithLocationCallTimeout 设置单次模型调用超时
func WithLocationCallTimeout(d time.Duration) LocationAnalyzerOption {
	return func(a *LocationAnalyzer) { a.callTimeout = d }
}

// DefaultFallbackCities 岗位文本兜底匹配的城市
var DefaultFallbackCities = []string{
	"São Paulo", "Rio de Janeiro", "Belo Horizonte", "Salvador", "Brasília",
	"Curitiba", "Porto Alegre", "Recife", "Fortaleza", "Manaus",
}

// NewLocationAnalyzer 创建地点分析器
func NewLocationAnalyzer(llmModel model.ToolCallingChatModel, logger *log.Logger, opts ...LocationAnalyzerOption) *LocationAnalyzer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	a := &LocationAnalyzer{
		llmModel:    llmModel,
		cities:      DefaultFallbackCities,
		callTimeout: 90 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

const jobLocationPrompt = `ANÁLISE CRÍTICA DA VAGA - Determine se é REMOTA ou PRESENCIAL.

TEXTO COMPLETO DA VAGA:
%s

Analise TODO o texto, incluindo qualquer menção de cidade, estado ou endereço em qualquer parte.

REGRAS:
1. Se contém "presencial" ou "híbrido" = PRESENCIAL
2. Se menciona uma cidade ou estado brasileiro como local de trabalho = PRESENCIAL
3. Se contém "remoto", "home office" ou "trabalho remoto" = REMOTA

FORMATO EXATO DA RESPOSTA:
TIPO_VAGA: [REMOTA ou PRESENCIAL]
LOCALIZAÇÃO_VAGA: [cidade/estado exato ou "Não especificado"]`

const candidateLocationPrompt = `Analise este currículo e extraia a localização geográfica do candidato.

CURRÍCULO:
%s

INSTRUÇÕES:
1. Procure qualquer menção de localização: endereço atual, cidade de residência, cidade da empresa atual.
2. Verifique se o candidato menciona disposição para mudança, relocação ou trabalho remoto.
3. Se houver menção de mudança ou trabalho remoto, responda SIM em DISPOSIÇÃO_MUDANÇA; caso contrário, NAO.

FORMATO DA RESPOSTA (siga exatamente):
LOCALIZAÇÃO: [cidade/estado encontrado, ou "Não informado"]
DISPOSIÇÃO_MUDANÇA: [SIM ou NAO]`

// Analyze 单次完成岗位分类与候选人分析
func (a *LocationAnalyzer) Analyze(ctx context.Context, jobDescription, resumeText string) types.LocationAnalysis {
	return a.AnalyzeCandidate(ctx, a.AnalyzeJob(ctx, jobDescription), resumeText)
}

// AnalyzeJob 判断岗位是否远程并提取岗位地点
func (a *LocationAnalyzer) AnalyzeJob(ctx context.Context, jobDescription string) JobLocation {
	reply, err := a.complete(ctx, fmt.Sprintf(jobLocationPrompt, jobDescription))
	if err != nil {
		a.logger.Printf("WARN: 岗位地点分析失败，按远程处理: %v", err)
		return JobLocation{Remote: true, Failed: true}
	}

	jobType, location := parseJobLocationReply(reply)
	job := JobLocation{Remote: strings.HasPrefix(jobType, "REMOT")}
	if !job.Remote && location == "" {
		location = a.cityFromText(jobDescription)
	}
	if location != "" {
		job.Location = &location
	}
	a.logger.Printf("岗位地点: 类型=%s 地点=%q", jobType, location)
	return job
}

// AnalyzeCandidate 基于已分类的岗位分析候选人
func (a *LocationAnalyzer) AnalyzeCandidate(ctx context.Context, job JobLocation, resumeText string) types.LocationAnalysis {
	if job.Remote || job.Failed {
		return types.RemoteVerdict()
	}

	reply, err := a.complete(ctx, fmt.Sprintf(candidateLocationPrompt, resumeText))
	if err != nil {
		a.logger.Printf("WARN: 候选人地点分析失败，按远程处理: %v", err)
		return types.RemoteVerdict()
	}

	candidateLocation, willing := parseCandidateLocationReply(reply)
	result := types.LocationAnalysis{
		HasLocationRequirement: true,
		JobLocation:            job.Location,
		WillingToRelocate:      willing,
	}
	if candidateLocation != "" {
		result.CandidateLocation = &candidateLocation
	}

	switch {
	case willing:
		result.IsLocationMatch = true
		result.MatchStatus = types.MatchWillRelocate
	case candidateLocation != "" && job.Location != nil:
		if LocationsOverlap(candidateLocation, *job.Location) {
			result.IsLocationMatch = true
			result.MatchStatus = types.MatchLocation
		} else {
			result.MatchStatus = types.MatchDifferent
		}
	case job.Location == nil:
		result.IsLocationMatch = true
		result.MatchStatus = types.MatchNoSpecificJob
	default:
		result.MatchStatus = types.MatchCandidateUnknown
	}
	return result
}

func (a *LocationAnalyzer) complete(ctx context.Context, prompt string) (string, error) {
	if a.llmModel == nil {
		return "", fmt.Errorf("LocationAnalyzer: llmModel is not initialized")
	}
	callCtx := ctx
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}
	resp, err := a.llmModel.Generate(callCtx, []*einoschema.Message{einoschema.UserMessage(prompt)}, model.WithTemperature(0))
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("LLM returned empty response")
	}
	return stripBOM(resp.Content), nil
}

// cityFromText 在岗位原文中按顺序查找兜底城市
func (a *LocationAnalyzer) cityFromText(jobDescription string) string {
	lower := strings.ToLower(jobDescription)
	for _, city := range a.cities {
		if strings.Contains(lower, strings.ToLower(city)) {
			return city
		}
	}
	return ""
}

// parseJobLocationReply 解析 TIPO_VAGA / LOCALIZAÇÃO_VAGA；类型缺失时默认 REMOTA
func parseJobLocationReply(reply string) (jobType, location string) {
	jobType = "REMOTA"
	for _, line := range strings.Split(reply, "\n") {
		key, value, ok := splitLocationLine(line)
		if !ok {
			continue
		}
		switch key {
		case "TIPO_VAGA":
			if v := strings.ToUpper(strings.Trim(value, "[] ")); v != "" {
				jobType = v
			}
		case "LOCALIZAÇÃO_VAGA", "LOCALIZACAO_VAGA":
			if !isUnspecified(value) {
				location = value
			}
		}
	}
	return jobType, location
}

// parseCandidateLocationReply 解析 LOCALIZAÇÃO / DISPOSIÇÃO_MUDANÇA
func parseCandidateLocationReply(reply string) (location string, willing bool) {
	for _, line := range strings.Split(reply, "\n") {
		key, value, ok := splitLocationLine(line)
		if !ok {
			continue
		}
		switch key {
		case "LOCALIZAÇÃO", "LOCALIZACAO":
			if !isUnspecified(value) {
				location = value
			}
		case "DISPOSIÇÃO_MUDANÇA", "DISPOSICAO_MUDANCA":
			willing = strings.Contains(strings.ToUpper(value), "SIM")
		}
	}
	return location, willing
}

func splitLocationLine(line string) (string, string, bool) {
	line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.ToUpper(strings.TrimLeft(strings.TrimSpace(line[:idx]), "-*• "))
	value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"[]`)
	return key, strings.TrimSpace(value), true
}

func isUnspecified(v string) bool {
	if v == "" {
		return true
	}
	switch strings.ToUpper(v) {
	case "NÃO ESPECIFICADO", "NAO ESPECIFICADO", "NÃO INFORMADO", "NAO INFORMADO", "N/A", "NENHUM":
		return true
	}
	return false
}

// LocationsOverlap 去掉标点后按词比较，只要有一个共同词即视为同一地点
func LocationsOverlap(a, b string) bool {
	wordsA := locationWords(a)
	for w := range locationWords(b) {
		if wordsA[w] {
			return true
		}
	}
	return false
}

func locationWords(s string) map[string]bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(s))
	out := map[string]bool{}
	for _, w := range strings.Fields(cleaned) {
		out[w] = true
	}
	return out
}
