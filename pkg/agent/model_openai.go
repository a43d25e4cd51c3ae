package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultOpenAIChatURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIChatModel = "gpt-4o-mini"
)

// OpenAICompatibleChatModel 对接任何 OpenAI 兼容的 chat/completions 接口
// (OpenAI、Azure 代理、Ollama 的 /v1 端点、DashScope compatible-mode 等)
type OpenAICompatibleChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	logger     *log.Logger
}

// OpenAIOption 配置 OpenAICompatibleChatModel
type OpenAIOption func(*OpenAICompatibleChatModel)

// WithOpenAIHTTPClient 自定义 HTTP 客户端
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(m *OpenAICompatibleChatModel) { m.httpClient = c }
}

// WithOpenAILogger 设置日志记录器
func WithOpenAILogger(l *log.Logger) OpenAIOption {
	return func(m *OpenAICompatibleChatModel) { m.logger = l }
}

// NewOpenAICompatibleChatModel 创建模型实例；apiKey 为空时报错
func NewOpenAICompatibleChatModel(apiKey, modelName, apiURL string, opts ...OpenAIOption) (*OpenAICompatibleChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultOpenAIChatModel
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultOpenAIChatURL
	}

	m := &OpenAICompatibleChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate 实现 model.ChatModel 接口
func (m *OpenAICompatibleChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{}, options...)

	req := chatCompletionRequest{
		Model:       m.modelName,
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
	}
	if common.Model != nil && *common.Model != "" {
		req.Model = *common.Model
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	m.logger.Printf("发送请求到 %s，模型 %s，消息数 %d", m.apiURL, req.Model, len(req.Messages))

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	// 状态码写进错误信息，上层据此识别 401 和 429
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %d %s: %s", httpResp.StatusCode, http.StatusText(httpResp.StatusCode), truncate(string(respBody), 500))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API 返回错误: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项")
	}

	content := ""
	if parsed.Choices[0].Message.Content != nil {
		content = *parsed.Choices[0].Message.Content
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream 以单条消息的流返回完整回复
func (m *OpenAICompatibleChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 本服务只用纯文本补全，工具列表被忽略
func (m *OpenAICompatibleChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		m.logger.Printf("忽略 %d 个工具定义", len(tools))
	}
	return m, nil
}

var _ model.ToolCallingChatModel = (*OpenAICompatibleChatModel)(nil)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
