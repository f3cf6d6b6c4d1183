package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/chunker"
	"github.com/fyerfyer/semantic-splitter/internal/document"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"github.com/fyerfyer/semantic-splitter/internal/repository"
	"github.com/fyerfyer/semantic-splitter/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// mockEmbedder 按主题关键词生成固定向量的模拟嵌入客户端
type mockEmbedder struct {
	embedCalls int
	batchCalls int
}

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.embedCalls++
	return mockVector(text), nil
}

func (e *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = mockVector(text)
	}
	return vectors, nil
}

func (e *mockEmbedder) Name() string { return "mock" }

func mockVector(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cat") || strings.Contains(lower, "feline"):
		return []float32{1, 0, 0}
	case strings.Contains(lower, "dog") || strings.Contains(lower, "canine"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

// stubChunker 返回预设分块的桩实现
type stubChunker struct {
	chunks []string
	err    error
	calls  int
}

func (c *stubChunker) Split(ctx context.Context, text string) ([]string, error) {
	c.calls++
	return c.chunks, c.err
}

func (c *stubChunker) Name() string { return "stub" }

// newSemanticChunker 创建由模拟嵌入驱动的语义分块器
func newSemanticChunker(t *testing.T, embedder *mockEmbedder, maxSize int) chunker.Chunker {
	config := chunker.DefaultConfig()
	config.MaxChunkSize = maxSize
	config.Embedder = embedder
	c, err := chunker.NewChunker("semantic", config)
	require.NoError(t, err)
	return c
}

// openTestDB 打开内存sqlite并创建仓储
func openTestDB(t *testing.T) repository.DocumentRepository {
	dbName := fmt.Sprintf("file:splitter_memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.Chunk{}))
	return repository.NewDocumentRepositoryWithDB(db)
}

// collect 完整消费惰性序列
func collect(t *testing.T, seq func(func(document.SplitPage, error) bool)) []document.SplitPage {
	var results []document.SplitPage
	for sp, err := range seq {
		require.NoError(t, err)
		results = append(results, sp)
	}
	return results
}

// 两页的标准测试输入，偏移量与拼接顺序一致
func animalPages() []document.Page {
	return document.BuildPages([]string{
		"Cats are mammals. ",
		"Dogs are mammals too.",
	})
}

func TestSplitterService_New(t *testing.T) {
	t.Run("requires chunker", func(t *testing.T) {
		_, err := NewSplitterService(nil)
		assert.ErrorIs(t, err, ErrChunkerRequired)
	})

	t.Run("storage mode requires embedder", func(t *testing.T) {
		db, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 3})
		require.NoError(t, err)

		_, err = NewSplitterService(&stubChunker{}, WithVectorDB(db))
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})

	t.Run("rejects non-positive max size", func(t *testing.T) {
		_, err := NewSplitterService(&stubChunker{}, WithMaxChunkSize(0))
		assert.ErrorIs(t, err, chunker.ErrInvalidChunkSize)
	})
}

func TestSplitterService_PureMode(t *testing.T) {
	t.Run("single chunk attributed to first page", func(t *testing.T) {
		// 窗口分块器在足够大的上限下只产出一个分块
		config := chunker.DefaultConfig()
		config.MaxChunkSize = 500
		window, err := chunker.NewChunker("window", config)
		require.NoError(t, err)

		srv, err := NewSplitterService(window, WithMaxChunkSize(500))
		require.NoError(t, err)

		results := collect(t, srv.SplitPages(context.Background(), "doc", animalPages()))
		require.Len(t, results, 1)
		assert.Equal(t, 0, results[0].PageNum)
		assert.Equal(t, "Cats are mammals. Dogs are mammals too.", results[0].Text)
	})

	t.Run("topic boundary maps chunks to pages", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, err := NewSplitterService(newSemanticChunker(t, embedder, 500))
		require.NoError(t, err)

		results := collect(t, srv.SplitPages(context.Background(), "doc", animalPages()))
		require.Len(t, results, 2)

		// 第一块从偏移0开始，归属第0页；第二块起点正好是第二页的偏移量
		assert.Equal(t, 0, results[0].PageNum)
		assert.Contains(t, results[0].Text, "Cats")
		assert.Equal(t, 1, results[1].PageNum)
		assert.Contains(t, results[1].Text, "Dogs")

		// 所有分块按顺序拼接还原全文
		var sb strings.Builder
		for _, r := range results {
			sb.WriteString(r.Text)
		}
		assert.Equal(t, "Cats are mammals. Dogs are mammals too.", sb.String())
	})

	t.Run("empty input makes no provider calls", func(t *testing.T) {
		stub := &stubChunker{chunks: []string{"never"}}
		srv, err := NewSplitterService(stub)
		require.NoError(t, err)

		results := collect(t, srv.SplitPages(context.Background(), "doc", nil))
		assert.Empty(t, results)

		results = collect(t, srv.SplitPages(context.Background(), "doc", document.BuildPages([]string{"  ", "\n\t"})))
		assert.Empty(t, results)

		assert.Zero(t, stub.calls, "空输入不应触发分块器")
	})

	t.Run("zero chunks is an anomaly not an error", func(t *testing.T) {
		srv, err := NewSplitterService(&stubChunker{chunks: nil})
		require.NoError(t, err)

		results := collect(t, srv.SplitPages(context.Background(), "doc", animalPages()))
		assert.Empty(t, results)
	})

	t.Run("oversize chunk is a contract failure", func(t *testing.T) {
		srv, err := NewSplitterService(
			&stubChunker{chunks: []string{strings.Repeat("a", 600)}},
			WithMaxChunkSize(500),
		)
		require.NoError(t, err)

		var gotErr error
		for _, err := range srv.SplitPages(context.Background(), "doc", document.BuildPages([]string{strings.Repeat("a", 600)})) {
			if err != nil {
				gotErr = err
				break
			}
		}
		assert.ErrorIs(t, gotErr, ErrOversizeChunk)
	})

	t.Run("duplicate text attributed forward", func(t *testing.T) {
		// 两页内容完全相同，前向游标保证第二块归属到后一页
		srv, err := NewSplitterService(&stubChunker{chunks: []string{"Same. ", "Same. "}})
		require.NoError(t, err)

		pages := document.BuildPages([]string{"Same. ", "Same. "})
		results := collect(t, srv.SplitPages(context.Background(), "doc", pages))
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].PageNum)
		assert.Equal(t, 1, results[1].PageNum)
	})

	t.Run("attribution miss falls back to sentinel", func(t *testing.T) {
		// 分块器返回了原文中不存在的文本
		srv, err := NewSplitterService(&stubChunker{chunks: []string{"not in source"}})
		require.NoError(t, err)

		results := collect(t, srv.SplitPages(context.Background(), "doc", animalPages()))
		require.Len(t, results, 1)
		assert.Equal(t, 0, results[0].PageNum)
	})

	t.Run("split text treats input as one page", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, err := NewSplitterService(newSemanticChunker(t, embedder, 500))
		require.NoError(t, err)

		results := collect(t, srv.SplitText(context.Background(), "doc", "Cats purr. Dogs bark."))
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.Equal(t, 0, r.PageNum)
		}
	})
}

func TestSplitterService_StorageMode(t *testing.T) {
	newStorageService := func(t *testing.T, embedder *mockEmbedder, batchSize int) (*SplitterService, vectordb.Repository, repository.DocumentRepository) {
		vdb, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 3})
		require.NoError(t, err)
		repo := openTestDB(t)

		srv, err := NewSplitterService(
			newSemanticChunker(t, embedder, 500),
			WithVectorDB(vdb),
			WithEmbedder(embedder),
			WithDocumentRepository(repo),
			WithBatchSize(batchSize),
		)
		require.NoError(t, err)
		return srv, vdb, repo
	}

	t.Run("persists chunks with attribution", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, vdb, repo := newStorageService(t, embedder, 16)

		results := collect(t, srv.SplitPages(context.Background(), "doc-store", animalPages()))
		require.Len(t, results, 2)

		// 向量库中有两个分块，ID带文档命名空间
		count, err := vdb.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		stored, err := vdb.Get("doc-store_0")
		require.NoError(t, err)
		assert.Equal(t, "doc-store", stored.DocID)
		assert.Equal(t, 0, stored.PageNum)

		stored, err = vdb.Get("doc-store_1")
		require.NoError(t, err)
		assert.Equal(t, 1, stored.PageNum, "入库模式同样执行页码归属")

		// 元数据仓储保存了分块和文档状态
		chunks, err := repo.GetChunks("doc-store")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 1, chunks[1].PageNum)

		doc, err := repo.GetByID("doc-store")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusCompleted, doc.Status)
		assert.Equal(t, 2, doc.ChunkCount)
	})

	t.Run("generates doc id when missing", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, vdb, _ := newStorageService(t, embedder, 16)

		results := collect(t, srv.SplitPages(context.Background(), "", animalPages()))
		require.Len(t, results, 2)

		count, err := vdb.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("two documents do not collide", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, vdb, _ := newStorageService(t, embedder, 16)

		collect(t, srv.SplitPages(context.Background(), "doc-a", animalPages()))
		collect(t, srv.SplitPages(context.Background(), "doc-b", animalPages()))

		count, err := vdb.Count()
		require.NoError(t, err)
		assert.Equal(t, 4, count, "相同文本的不同文档不能互相覆盖")
	})

	t.Run("early stop skips later batches", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, vdb, _ := newStorageService(t, embedder, 1)

		consumed := 0
		for _, err := range srv.SplitPages(context.Background(), "doc-stop", animalPages()) {
			require.NoError(t, err)
			consumed++
			break
		}
		require.Equal(t, 1, consumed)

		// 每批一个分块，提前停止后第二批不会向量化入库
		count, err := vdb.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		// 分块器嵌入句子用了一次批调用，入库只用了第一批的一次；
		// 完整消费两个分块会是三次
		assert.Equal(t, 2, embedder.batchCalls)
	})

	t.Run("delete document removes vectors and metadata", func(t *testing.T) {
		embedder := &mockEmbedder{}
		srv, vdb, repo := newStorageService(t, embedder, 16)

		collect(t, srv.SplitPages(context.Background(), "doc-del", animalPages()))
		require.NoError(t, srv.DeleteDocument(context.Background(), "doc-del"))

		count, err := vdb.Count()
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = repo.GetByID("doc-del")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	})
}
