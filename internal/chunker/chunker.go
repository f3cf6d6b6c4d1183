package chunker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/semantic-splitter/internal/embedding"
)

// 常用错误定义
var (
	ErrInvalidChunkSize = errors.New("max chunk size must be positive")
	ErrEmbedderRequired = errors.New("semantic chunker requires an embedding client")
)

// Chunker 文本分块器接口
// 将一段全文切分为有序的连续子串序列，每个子串不超过配置的大小上限
// 分块策略（语义聚类、固定窗口等）由具体实现决定
type Chunker interface {
	// Split 将文本切分为有序分块
	// 返回的每个分块都是原文的连续子串，按在原文中首次出现的顺序排列
	Split(ctx context.Context, text string) ([]string, error)

	// Name 返回分块器名称
	Name() string
}

// Config 分块器配置
type Config struct {
	MaxChunkSize        int              // 分块大小上限（字节数）
	SimilarityThreshold float64          // 语义合并的相似度阈值（仅语义分块器使用）
	Embedder            embedding.Client // 嵌入客户端（仅语义分块器使用）
	BatchSize           int              // 句子嵌入的批处理大小
	MaxWorkers          int              // 嵌入批处理的并行度
}

// DefaultConfig 返回默认分块器配置
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:        500,
		SimilarityThreshold: 0.5,
		BatchSize:           16,
		MaxWorkers:          4,
	}
}

// Validate 校验配置，非法配置立即失败
func (c Config) Validate() error {
	if c.MaxChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	return nil
}

// Factory 分块器工厂函数类型
type Factory func(config Config) (Chunker, error)

// 注册的分块器实现
var chunkerRegistry = make(map[string]Factory)

// RegisterChunker 注册分块器工厂函数
func RegisterChunker(name string, factory Factory) {
	chunkerRegistry[name] = factory
}

// NewChunker 根据名称创建分块器
func NewChunker(name string, config Config) (Chunker, error) {
	factory, ok := chunkerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("chunker type not registered: %s", name)
	}
	return factory(config)
}
