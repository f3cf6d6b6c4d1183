package vectordb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestChunk 创建用于测试的分块
func createTestChunk(id, docID string, pageNum, position int, vector []float32) Chunk {
	return Chunk{
		ID:       id,
		DocID:    docID,
		PageNum:  pageNum,
		Position: position,
		Text:     "这是测试分块 " + id,
		Vector:   vector,
		Metadata: map[string]interface{}{
			"source": "test",
		},
		CreatedAt: time.Now(),
	}
}

// TestMemoryRepository 测试内存向量仓库
func TestMemoryRepository(t *testing.T) {
	config := Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: Cosine,
	}

	repo, err := NewRepository(config)
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

// TestFaissRepository 测试FAISS向量仓库
func TestFaissRepository(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "faiss_chunk_test")
	err := os.MkdirAll(tempDir, 0755)
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	config := Config{
		Type:              "faiss",
		Dimension:         4,
		DistanceType:      Cosine,
		Path:              filepath.Join(tempDir, "test_index"),
		CreateIfNotExists: true,
	}

	repo, err := NewRepository(config)
	if err != nil {
		t.Skip("FAISS may not be installed correctly, skipping test: " + err.Error())
	}
	defer repo.Close()

	testRepository(t, repo)
}

// testRepository 对任意Repository实现执行通用测试
func testRepository(t *testing.T, repo Repository) {
	t.Run("add and get", func(t *testing.T) {
		chunk := createTestChunk("doc1_0", "doc1", 1, 0, []float32{1, 0, 0, 0})
		require.NoError(t, repo.Add(chunk))

		got, err := repo.Get("doc1_0")
		require.NoError(t, err)
		assert.Equal(t, "doc1", got.DocID)
		assert.Equal(t, 1, got.PageNum)
		assert.Equal(t, chunk.Text, got.Text)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get("no-such-id")
		assert.ErrorIs(t, err, ErrChunkNotFound)
	})

	t.Run("add rejects bad input", func(t *testing.T) {
		err := repo.Add(Chunk{ID: "", Vector: []float32{1, 0, 0, 0}})
		assert.ErrorIs(t, err, ErrInvalidID)

		err = repo.Add(Chunk{ID: "bad", Vector: nil})
		assert.ErrorIs(t, err, ErrEmptyVector)

		err = repo.Add(Chunk{ID: "bad", Vector: []float32{1, 0}})
		assert.Error(t, err)
	})

	t.Run("batch add and search", func(t *testing.T) {
		chunks := []Chunk{
			createTestChunk("doc2_0", "doc2", 1, 0, []float32{1, 0, 0, 0}),
			createTestChunk("doc2_1", "doc2", 1, 1, []float32{0.9, 0.1, 0, 0}),
			createTestChunk("doc2_2", "doc2", 2, 2, []float32{0, 0, 1, 0}),
		}
		require.NoError(t, repo.AddBatch(chunks))

		filter := DefaultSearchFilter()
		filter.DocIDs = []string{"doc2"}
		filter.MaxResults = 2

		results, err := repo.Search([]float32{1, 0, 0, 0}, filter)
		require.NoError(t, err)
		require.Len(t, results, 2)

		// 最相似的分块排在最前
		assert.Equal(t, "doc2_0", results[0].Chunk.ID)
		assert.Equal(t, "doc2_1", results[1].Chunk.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("search with page filter", func(t *testing.T) {
		filter := DefaultSearchFilter()
		filter.DocIDs = []string{"doc2"}
		filter.PageNums = []int{2}

		results, err := repo.Search([]float32{1, 0, 0, 0}, filter)
		require.NoError(t, err)
		for _, res := range results {
			assert.Equal(t, 2, res.Chunk.PageNum)
		}
	})

	t.Run("overwrite existing id", func(t *testing.T) {
		require.NoError(t, repo.Add(createTestChunk("doc5_0", "doc5", 1, 0, []float32{0, 1, 0, 0})))
		updated := createTestChunk("doc5_0", "doc5", 2, 0, []float32{0, 0, 0, 1})
		updated.Text = "覆盖后的分块"
		require.NoError(t, repo.Add(updated))

		got, err := repo.Get("doc5_0")
		require.NoError(t, err)
		assert.Equal(t, "覆盖后的分块", got.Text)
		assert.Equal(t, 2, got.PageNum)

		// 同一ID只出现一次，旧向量不再参与评分
		filter := DefaultSearchFilter()
		filter.DocIDs = []string{"doc5"}
		filter.MaxResults = 10

		results, err := repo.Search([]float32{0, 0, 0, 1}, filter)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc5_0", results[0].Chunk.ID)
		assert.Equal(t, "覆盖后的分块", results[0].Chunk.Text)
	})

	t.Run("search rejects bad vector", func(t *testing.T) {
		_, err := repo.Search(nil, DefaultSearchFilter())
		assert.ErrorIs(t, err, ErrEmptyVector)

		_, err = repo.Search([]float32{1}, DefaultSearchFilter())
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		chunk := createTestChunk("doc3_0", "doc3", 1, 0, []float32{0, 1, 0, 0})
		require.NoError(t, repo.Add(chunk))
		require.NoError(t, repo.Delete("doc3_0"))

		_, err := repo.Get("doc3_0")
		assert.ErrorIs(t, err, ErrChunkNotFound)

		assert.ErrorIs(t, repo.Delete("doc3_0"), ErrChunkNotFound)
	})

	t.Run("delete by doc id", func(t *testing.T) {
		require.NoError(t, repo.AddBatch([]Chunk{
			createTestChunk("doc4_0", "doc4", 1, 0, []float32{0, 1, 0, 0}),
			createTestChunk("doc4_1", "doc4", 2, 1, []float32{0, 0, 1, 0}),
		}))

		before, err := repo.Count()
		require.NoError(t, err)

		require.NoError(t, repo.DeleteByDocID("doc4"))

		after, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, before-2, after)

		// 删除不存在的文档不报错
		assert.NoError(t, repo.DeleteByDocID("doc4"))
	})

	t.Run("dimension", func(t *testing.T) {
		assert.Equal(t, 4, repo.GetDimension())
	})
}

// TestComputeDistance 测试距离计算
func TestComputeDistance(t *testing.T) {
	t.Run("cosine", func(t *testing.T) {
		dist, err := ComputeDistance([]float32{1, 0}, []float32{1, 0}, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, dist, 1e-6)

		dist, err = ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, dist, 1e-6)
	})

	t.Run("euclidean", func(t *testing.T) {
		dist, err := ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, dist, 1e-6)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := ComputeDistance([]float32{1, 0}, []float32{1, 0, 0}, Cosine)
		assert.Error(t, err)
	})
}

// TestNormalizeVector 测试向量归一化
func TestNormalizeVector(t *testing.T) {
	normalized := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, normalized[0], 1e-6)
	assert.InDelta(t, 0.8, normalized[1], 1e-6)
	assert.InDelta(t, 1.0, vectorNorm(normalized), 1e-6)

	// 零向量保持原样返回
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, normalizeVector(zero))
}

// TestFilterChunks 测试过滤逻辑
func TestFilterChunks(t *testing.T) {
	chunks := []Chunk{
		createTestChunk("a_0", "a", 1, 0, []float32{1}),
		createTestChunk("a_1", "a", 2, 1, []float32{1}),
		createTestChunk("b_0", "b", 1, 0, []float32{1}),
	}

	filtered := FilterChunks(chunks, SearchFilter{DocIDs: []string{"a"}})
	assert.Len(t, filtered, 2)

	filtered = FilterChunks(chunks, SearchFilter{PageNums: []int{1}})
	assert.Len(t, filtered, 2)

	filtered = FilterChunks(chunks, SearchFilter{
		DocIDs:   []string{"a"},
		PageNums: []int{2},
	})
	require.Len(t, filtered, 1)
	assert.Equal(t, "a_1", filtered[0].ID)

	filtered = FilterChunks(chunks, SearchFilter{
		Metadata: map[string]interface{}{"source": "other"},
	})
	assert.Empty(t, filtered)
}

// TestSortSearchResults 测试结果排序
func TestSortSearchResults(t *testing.T) {
	results := []SearchResult{
		{Score: 0.3},
		{Score: 0.9},
		{Score: 0.6},
	}
	SortSearchResults(results)

	assert.Equal(t, float32(0.9), results[0].Score)
	assert.Equal(t, float32(0.6), results[1].Score)
	assert.Equal(t, float32(0.3), results[2].Score)
}
