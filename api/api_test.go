package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/semantic-splitter/api/handler"
	"github.com/fyerfyer/semantic-splitter/api/model"
	"github.com/fyerfyer/semantic-splitter/internal/chunker"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"github.com/fyerfyer/semantic-splitter/internal/repository"
	"github.com/fyerfyer/semantic-splitter/internal/services"
	"github.com/fyerfyer/semantic-splitter/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// apiEmbedder 按主题关键词生成固定向量的模拟嵌入客户端
type apiEmbedder struct{}

func (e *apiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return apiVector(text), nil
}

func (e *apiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = apiVector(text)
	}
	return vectors, nil
}

func (e *apiEmbedder) Name() string { return "mock" }

func apiVector(text string) []float32 {
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

// setupTestRouter 用内存向量库和内存sqlite搭建完整路由
func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dbName := fmt.Sprintf("file:api_memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.Chunk{}))
	repo := repository.NewDocumentRepositoryWithDB(db)

	vdb, err := vectordb.NewMemoryRepository(vectordb.Config{
		Dimension:    3,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)

	embedder := &apiEmbedder{}

	pureChunker, err := chunker.NewWindowChunker(chunker.Config{MaxChunkSize: 500})
	require.NoError(t, err)
	pureSplitter, err := services.NewSplitterService(pureChunker)
	require.NoError(t, err)

	storeChunker, err := chunker.NewClusterChunker(chunker.Config{
		MaxChunkSize:        500,
		SimilarityThreshold: 0.5,
		Embedder:            embedder,
	})
	require.NoError(t, err)
	storeSplitter, err := services.NewSplitterService(
		storeChunker,
		services.WithVectorDB(vdb),
		services.WithEmbedder(embedder),
		services.WithDocumentRepository(repo),
	)
	require.NoError(t, err)

	retrieval, err := services.NewRetrievalService(embedder, vdb)
	require.NoError(t, err)

	return SetupRouter(
		handler.NewSplitHandler(pureSplitter),
		handler.NewDocumentHandler(storeSplitter, repo),
		handler.NewSearchHandler(retrieval),
	)
}

// doRequest 发送请求并解析统一响应结构
func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, *model.Response) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, &resp
}

func TestHealthEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSplitEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	t.Run("splits pages and attributes chunks", func(t *testing.T) {
		w, resp := doRequest(t, router, http.MethodPost, "/api/split", model.SplitRequest{
			DocID: "doc-split",
			Pages: []string{"Cats are mammals. ", "Dogs are mammals too."},
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, resp.Code)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var split model.SplitResponse
		require.NoError(t, json.Unmarshal(data, &split))

		assert.Equal(t, "doc-split", split.DocID)
		require.NotEmpty(t, split.Chunks)

		// 分块按原文顺序拼回完整文本
		var joined strings.Builder
		for _, chunk := range split.Chunks {
			joined.WriteString(chunk.Text)
		}
		assert.Equal(t, "Cats are mammals. Dogs are mammals too.", joined.String())
		assert.Equal(t, 0, split.Chunks[0].PageNum)
	})

	t.Run("rejects empty pages", func(t *testing.T) {
		w, resp := doRequest(t, router, http.MethodPost, "/api/split", map[string]interface{}{
			"pages": []string{},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEqual(t, 0, resp.Code)
	})
}

func TestDocumentLifecycle(t *testing.T) {
	router := setupTestRouter(t)

	// 入库
	w, resp := doRequest(t, router, http.MethodPost, "/api/documents", model.SplitRequest{
		DocID: "doc-life",
		Pages: []string{"Cats are mammals. ", "Dogs are mammals too."},
		Tags:  "animals",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var ingest model.IngestResponse
	require.NoError(t, json.Unmarshal(data, &ingest))
	assert.Equal(t, "doc-life", ingest.DocID)
	assert.Greater(t, ingest.ChunkCount, 0)
	assert.Equal(t, string(models.DocStatusCompleted), ingest.Status)

	// 状态查询
	w, resp = doRequest(t, router, http.MethodGet, "/api/documents/doc-life/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data, err = json.Marshal(resp.Data)
	require.NoError(t, err)
	var status model.DocumentStatusResponse
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, string(models.DocStatusCompleted), status.Status)
	assert.Equal(t, 2, status.PageCount)
	assert.Equal(t, ingest.ChunkCount, status.ChunkCount)

	// 检索应该命中入库的分块
	w, resp = doRequest(t, router, http.MethodPost, "/api/search", model.SearchRequest{
		Query: "feline",
		TopK:  1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data, err = json.Marshal(resp.Data)
	require.NoError(t, err)
	var search model.SearchResponse
	require.NoError(t, json.Unmarshal(data, &search))
	require.Len(t, search.Results, 1)
	assert.Equal(t, "doc-life", search.Results[0].DocID)
	assert.Contains(t, search.Results[0].Text, "Cats")
	assert.Equal(t, 0, search.Results[0].PageNum)

	// 列表
	w, resp = doRequest(t, router, http.MethodGet, "/api/documents?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data, err = json.Marshal(resp.Data)
	require.NoError(t, err)
	var list model.DocumentListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "animals", list.Documents[0].Tags)

	// 删除
	w, resp = doRequest(t, router, http.MethodDelete, "/api/documents/doc-life", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, resp.Code)

	// 删除后状态查询返回404
	w, _ = doRequest(t, router, http.MethodGet, "/api/documents/doc-life/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchValidation(t *testing.T) {
	router := setupTestRouter(t)

	t.Run("rejects missing query", func(t *testing.T) {
		w, _ := doRequest(t, router, http.MethodPost, "/api/search", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects non-positive top_k", func(t *testing.T) {
		w, _ := doRequest(t, router, http.MethodPost, "/api/search", map[string]interface{}{
			"query": "anything",
			"top_k": -1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown document returns not found", func(t *testing.T) {
		w, _ := doRequest(t, router, http.MethodGet, "/api/documents/no-such-doc/status", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
