package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// 默认嵌入模型
const defaultOpenAIModel = "text-embedding-3-large"

// OpenAIClient OpenAI嵌入向量客户端
// 同时支持OpenAI官方接口和Azure OpenAI部署
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	model  string         // 使用的嵌入模型
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建标准OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	// 如果指定了自定义端点，则使用它（兼容OpenAI协议的代理服务）
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return newOpenAIClient(clientConfig, cfg), nil
}

// NewAzureOpenAIClient 创建Azure OpenAI嵌入客户端
// 端点为Azure资源地址，模型名即部署名
func NewAzureOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "Azure OpenAI API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "Azure OpenAI endpoint is required")
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	return newOpenAIClient(clientConfig, cfg), nil
}

func newOpenAIClient(clientConfig openai.ClientConfig, cfg *Config) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: cfg,
	}
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}

	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
// 对暂态错误（限流、5xx）做指数退避重试
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batchLimit := c.config.BatchSize
	if batchLimit > 0 && len(texts) > batchLimit {
		return nil, ErrBatchTooLarge
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	}
	if c.config.Dimensions > 0 {
		req.Dimensions = c.config.Dimensions
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var resp openai.EmbeddingResponse
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避等待后重试
			select {
			case <-ctx.Done():
				return nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 200 * time.Millisecond):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err = c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			break
		}
		if !isTransientError(err) {
			return nil, NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("embedding API error: %v", err))
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	// 按输入顺序构建结果
	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		result[item.Index] = item.Embedding
	}

	return result, nil
}

// isTransientError 判断是否为可重试的暂态错误
func isTransientError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// 非API错误按网络类暂态错误处理
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// 注册OpenAI和Azure客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("azure", NewAzureOpenAIClient)
}
