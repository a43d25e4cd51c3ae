package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

const (
	// 少于这么多字符的文本不可能是简历
	minResumeTextLength = 100
	// 送给模型判断的前缀长度
	resumeValidatorSample = 2000
)

const resumeValidatorPrompt = `Analise o texto fornecido e determine se ele representa um currículo profissional (CV/resume) válido.

Um currículo típico contém:
- Informações pessoais (nome, contato)
- Experiência profissional
- Formação acadêmica
- Habilidades/competências
- Idiomas ou outras seções relevantes

Responda apenas com "SIM" se for um currículo válido, ou "NÃO" se não for.

Texto a analisar:
%s

Resposta:`

// ResumeValidator 用大模型判断文本是否为简历
type ResumeValidator struct {
	llmModel    model.ToolCallingChatModel
	callTimeout time.Duration
	logger      *log.Logger
}

// NewResumeValidator 创建简历校验器
func NewResumeValidator(llmModel model.ToolCallingChatModel, callTimeout time.Duration, logger *log.Logger) *ResumeValidator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ResumeValidator{llmModel: llmModel, callTimeout: callTimeout, logger: logger}
}

// IsResume 只有模型明确回答 SIM 才算简历；调用失败按"不是简历"处理
func (v *ResumeValidator) IsResume(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minResumeTextLength {
		return false
	}
	if v.llmModel == nil {
		return false
	}

	sample := text
	if r := []rune(text); len(r) > resumeValidatorSample {
		sample = string(r[:resumeValidatorSample]) + "..."
	}

	callCtx := ctx
	if v.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.callTimeout)
		defer cancel()
	}
	resp, err := v.llmModel.Generate(callCtx,
		[]*einoschema.Message{einoschema.UserMessage(fmt.Sprintf(resumeValidatorPrompt, sample))},
		model.WithTemperature(0))
	if err != nil || resp == nil {
		v.logger.Printf("WARN: 简历校验调用失败，按非简历处理: %v", err)
		return false
	}

	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(stripBOM(resp.Content)), `."'*`))
	return answer == "SIM"
}
