package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批量嵌入处理器
// 将大量分块文本切成小批次并行发送，结果保持输入顺序
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作协程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 为一组文本生成向量，语义上等价于逐条调用Embed
// 返回的向量数量与输入文本数量相同且顺序一致
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := splitIntoBatches(texts, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	results := make([][][]float32, len(batches))

	var mu sync.Mutex
	var processErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				errOnce.Do(func() { processErr = ctx.Err() })
				return
			default:
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err != nil {
				errOnce.Do(func() {
					processErr = fmt.Errorf("embedding batch %d failed: %w", i, err)
				})
				return
			}

			mu.Lock()
			results[i] = vectors
			mu.Unlock()
		})
	}

	wp.StopWait()

	if processErr != nil {
		return nil, processErr
	}

	// 按批次顺序合并，保持与输入文本一致的顺序
	merged := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		merged = append(merged, vectors...)
	}
	if len(merged) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(merged)))
	}

	return merged, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}

	return batches
}
