package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiChatModel 把 Gemini 适配成 eino 的 ToolCallingChatModel
type GeminiChatModel struct {
	client    *genai.Client
	modelName string
	logger    *log.Logger
}

// NewGeminiChatModel 创建 Gemini 客户端
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string) (*GeminiChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	return &GeminiChatModel{
		client:    client,
		modelName: modelName,
		logger:    log.New(io.Discard, "", 0),
	}, nil
}

// SetLogger 设置日志记录器
func (g *GeminiChatModel) SetLogger(l *log.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Generate 系统消息转为 SystemInstruction，其余消息作为对话历史，最后一条作为本轮输入
func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{}, options...)

	modelName := g.modelName
	if common.Model != nil && *common.Model != "" {
		modelName = *common.Model
	}
	gm := g.client.GenerativeModel(modelName)
	if common.Temperature != nil {
		gm.SetTemperature(*common.Temperature)
	} else {
		gm.SetTemperature(0.1)
	}
	if common.MaxTokens != nil {
		gm.SetMaxOutputTokens(int32(*common.MaxTokens))
	}

	var system []string
	var history []*genai.Content
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("没有可发送的消息")
	}

	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	g.logger.Printf("发送请求到 Gemini，模型 %s，历史消息 %d", modelName, len(cs.History))
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("Gemini 生成失败: %w", err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 以单条消息的流返回完整回复
func (g *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 工具列表被忽略
func (g *GeminiChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return g, nil
}

// Close 释放底层客户端
func (g *GeminiChatModel) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

var _ model.ToolCallingChatModel = (*GeminiChatModel)(nil)

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini 响应中没有候选结果")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini 响应中没有内容")
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("Gemini 响应中没有文本")
	}
	return strings.Join(parts, ""), nil
}
