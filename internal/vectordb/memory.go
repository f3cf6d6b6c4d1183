package vectordb

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	mu            sync.RWMutex        // 读写锁，确保并发安全
	dimension     int                 // 向量维度
	distType      DistanceType        // 距离计算类型
	chunks        map[string]Chunk    // 分块存储，ID到分块的映射
	docToChunkIDs map[string][]string // 文档ID到分块ID的映射
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:     config.Dimension,
		distType:      distType,
		chunks:        make(map[string]Chunk),
		docToChunkIDs: make(map[string][]string),
	}, nil
}

// Add 添加单个分块到内存仓库
func (r *MemoryRepository) Add(chunk Chunk) error {
	if chunk.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
		return err
	}

	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.store(chunk)
	return nil
}

// AddBatch 批量添加分块到内存仓库
func (r *MemoryRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// 先验证整批，避免部分写入
	for i := range chunks {
		if chunks[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(chunks[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunks[i].ID, err)
		}
	}

	// 使用单个锁进行批处理，避免多次加解锁开销
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range chunks {
		chunk := chunks[i]
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]interface{})
		}
		r.store(chunk)
	}

	return nil
}

// store 写入分块并维护文档索引，调用者需持有写锁
func (r *MemoryRepository) store(chunk Chunk) {
	if _, exists := r.chunks[chunk.ID]; !exists {
		r.docToChunkIDs[chunk.DocID] = append(r.docToChunkIDs[chunk.DocID], chunk.ID)
	}
	r.chunks[chunk.ID] = chunk
}

// Get 获取单个分块
func (r *MemoryRepository) Get(id string) (Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return Chunk{}, ErrChunkNotFound
	}

	return chunk, nil
}

// Delete 删除单个分块
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return ErrChunkNotFound
	}

	delete(r.chunks, id)

	// 更新文档到分块的映射
	if chunkIDs, ok := r.docToChunkIDs[chunk.DocID]; ok {
		updated := make([]string, 0, len(chunkIDs)-1)
		for _, cid := range chunkIDs {
			if cid != id {
				updated = append(updated, cid)
			}
		}

		if len(updated) == 0 {
			delete(r.docToChunkIDs, chunk.DocID)
		} else {
			r.docToChunkIDs[chunk.DocID] = updated
		}
	}

	return nil
}

// DeleteByDocID 删除指定文档的所有分块
func (r *MemoryRepository) DeleteByDocID(docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunkIDs, exists := r.docToChunkIDs[docID]
	if !exists {
		return nil
	}

	for _, id := range chunkIDs {
		delete(r.chunks, id)
	}
	delete(r.docToChunkIDs, docID)

	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 指定了文档ID时利用索引直接定位，避免全表扫描
	var candidates []Chunk
	if len(filter.DocIDs) > 0 {
		for _, docID := range filter.DocIDs {
			for _, id := range r.docToChunkIDs[docID] {
				if chunk, ok := r.chunks[id]; ok {
					candidates = append(candidates, chunk)
				}
			}
		}
		candidates = FilterChunks(candidates, SearchFilter{
			PageNums: filter.PageNums,
			Metadata: filter.Metadata,
		})
	} else {
		all := make([]Chunk, 0, len(r.chunks))
		for _, chunk := range r.chunks {
			all = append(all, chunk)
		}
		candidates = FilterChunks(all, filter)
	}

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, chunk := range candidates {
		dist, err := ComputeDistance(vector, chunk.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Chunk:    chunk,
				Score:    score,
				Distance: dist,
			})
		}
	}

	// 按得分排序并截取前N个结果
	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	return results, nil
}

// Count 获取分块总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.chunks), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
