package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"

	"adequa-rag/internal/config"
)

// Embedder 向量化接口：eino 的 Embedder 加上模型描述
type Embedder interface {
	embedding.Embedder
	Dimensions() int
	ModelName() string
}

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewOpenAIEmbedder 创建 Embedder
func NewOpenAIEmbedder(apiKey string, cfg config.EmbeddingConfig, logger *log.Logger) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/embeddings"
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Dimensions 返回配置的维度，0 表示由模型决定
func (a *OpenAIEmbedder) Dimensions() int { return a.dimensions }

// ModelName 返回模型名称
func (a *OpenAIEmbedder) ModelName() string { return a.model }

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// EmbedStrings 将文本转换为向量，按批次请求，返回顺序与输入一致
func (a *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := a.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		end := start + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := a.embedBatch(ctx, model, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (a *OpenAIEmbedder) embedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	reqBody := embeddingRequest{Input: texts, Model: model, Dimensions: a.dimensions, EncodingFormat: "float"}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed embeddingResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s'", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("API返回的向量数量 %d 与输入数量 %d 不一致", len(parsed.Data), len(texts))
	}

	// 按 index 还原输入顺序
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vecs := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}

	a.logger.Printf("向量化 %d 条文本，维度 %d，tokens %d", len(texts), firstEmbeddingDim(vecs), parsed.Usage.TotalTokens)
	return vecs, nil
}

func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 {
		return len(embeddings[0])
	}
	return 0
}

// HashEmbedder 本地确定性向量化：小写词与字符三元组做特征哈希后 L2 归一化
// 不依赖外部服务，用于离线部署和测试
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder 创建 HashEmbedder，dims<=0 时取 256
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions 返回向量维度
func (h *HashEmbedder) Dimensions() int { return h.dims }

// ModelName 返回模型名称
func (h *HashEmbedder) ModelName() string { return fmt.Sprintf("feature-hash-%d", h.dims) }

// EmbedStrings 实现 embedding.Embedder
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h.add(vec, "w:"+w, 1)
		r := []rune(w)
		for j := 0; j+3 <= len(r); j++ {
			h.add(vec, "g:"+string(r[j:j+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	// 最高位决定符号，减少碰撞带来的偏置
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// CosineSimilarity 余弦相似度；任一向量为零向量时返回 0
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*HashEmbedder)(nil)
)
