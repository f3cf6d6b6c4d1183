package chunker

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fyerfyer/semantic-splitter/internal/embedding"
)

// ClusterChunker 基于嵌入相似度聚类的语义分块器
// 将相邻且语义相近的句子聚合为一个分块，块大小不超过配置上限
// 对固定的输入和嵌入模型，分块结果是确定性的
type ClusterChunker struct {
	embedder  embedding.Client          // 句子嵌入客户端
	processor *embedding.BatchProcessor // 批量嵌入处理器
	maxSize   int                       // 分块大小上限（字节）
	threshold float64                   // 并入当前块所需的最低余弦相似度
}

// NewClusterChunker 创建语义分块器
func NewClusterChunker(config Config) (Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Embedder == nil {
		return nil, ErrEmbedderRequired
	}

	threshold := config.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().SimilarityThreshold
	}

	return &ClusterChunker{
		embedder:  config.Embedder,
		processor: embedding.NewBatchProcessor(config.Embedder, config.BatchSize, config.MaxWorkers),
		maxSize:   config.MaxChunkSize,
		threshold: threshold,
	}, nil
}

// Name 返回分块器名称
func (c *ClusterChunker) Name() string {
	return "semantic"
}

// Split 将文本切分为语义连贯的分块
// 算法：句子切分 → 句子嵌入 → 贪心聚合
// 只要下一个句子与当前块质心的相似度达到阈值且不超出大小上限，就并入当前块
func (c *ClusterChunker) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	spans := splitOversized(splitSentences(text), c.maxSize)
	if len(spans) == 0 {
		return nil, nil
	}

	// 嵌入所有句子，空白句子跳过嵌入但保留在分块中
	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}

	vectors, err := c.processor.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sentences: %w", err)
	}

	var chunks []string
	chunkStart := spans[0].Start
	chunkEnd := spans[0].End
	centroid := newCentroid(vectors[0])

	for i := 1; i < len(spans); i++ {
		span := spans[i]
		fits := chunkEnd-chunkStart+len(span.Text) <= c.maxSize
		coherent := centroid.similarity(vectors[i]) >= c.threshold || isBlank(span.Text)

		if fits && coherent {
			// 并入当前块
			chunkEnd = span.End
			centroid.add(vectors[i])
			continue
		}

		chunks = append(chunks, text[chunkStart:chunkEnd])
		chunkStart = span.Start
		chunkEnd = span.End
		centroid = newCentroid(vectors[i])
	}
	chunks = append(chunks, text[chunkStart:chunkEnd])

	return chunks, nil
}

// isBlank 检查片段是否只包含空白字符
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// centroid 当前分块的向量质心
type centroid struct {
	sum   []float64
	count int
}

func newCentroid(vec []float32) *centroid {
	sum := make([]float64, len(vec))
	for i, v := range vec {
		sum[i] = float64(v)
	}
	return &centroid{sum: sum, count: 1}
}

// add 将向量并入质心
func (c *centroid) add(vec []float32) {
	if len(vec) != len(c.sum) {
		return
	}
	for i, v := range vec {
		c.sum[i] += float64(v)
	}
	c.count++
}

// similarity 计算向量与质心的余弦相似度
func (c *centroid) similarity(vec []float32) float64 {
	if len(vec) != len(c.sum) || c.count == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i, v := range vec {
		mean := c.sum[i] / float64(c.count)
		dot += mean * float64(v)
		normA += mean * mean
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// 在包初始化时注册语义分块器
func init() {
	RegisterChunker("semantic", NewClusterChunker)
}
