package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/database"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	// 运行迁移以创建所需的表
	err = db.AutoMigrate(&models.Document{}, &models.Chunk{})
	require.NoError(t, err, "Failed to run migrations")

	// 替换全局DB为测试DB
	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}

	return db, cleanup
}

func createTestDocument(t *testing.T, repo DocumentRepository, id string) *models.Document {
	doc := &models.Document{
		ID:        id,
		Name:      "animals.txt",
		Status:    models.DocStatusPending,
		PageCount: 2,
		Tags:      "test",
	}
	require.NoError(t, repo.Create(doc))
	return doc
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	createTestDocument(t, repo, "doc-1")

	got, err := repo.GetByID("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "animals.txt", got.Name)
	assert.Equal(t, models.DocStatusPending, got.Status)
	assert.False(t, got.UploadedAt.IsZero(), "创建钩子应设置登记时间")

	// 空ID应被拒绝
	err = repo.Create(&models.Document{})
	assert.Error(t, err)

	// 不存在的文档
	_, err = repo.GetByID("no-such-doc")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestDocumentRepository_UpdateStatus(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	createTestDocument(t, repo, "doc-status")

	err := repo.UpdateStatus("doc-status", models.DocStatusCompleted, "")
	require.NoError(t, err)

	got, err := repo.GetByID("doc-status")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt, "终态应记录处理完成时间")

	// 失败状态携带错误信息
	err = repo.UpdateStatus("doc-status", models.DocStatusFailed, "embed provider unavailable")
	require.NoError(t, err)

	got, err = repo.GetByID("doc-status")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Equal(t, "embed provider unavailable", got.Error)
}

func TestDocumentRepository_List(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	createTestDocument(t, repo, "doc-a")
	createTestDocument(t, repo, "doc-b")
	require.NoError(t, repo.UpdateStatus("doc-b", models.DocStatusCompleted, ""))

	docs, total, err := repo.List(0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, docs, 2)

	docs, total, err = repo.List(0, 10, map[string]interface{}{
		"status": models.DocStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-b", docs[0].ID)
}

func TestDocumentRepository_Chunks(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	createTestDocument(t, repo, "doc-chunks")

	chunks := []*models.Chunk{
		{DocumentID: "doc-chunks", ChunkID: "doc-chunks_0", PageNum: 1, Position: 0, Text: "Cats are mammals."},
		{DocumentID: "doc-chunks", ChunkID: "doc-chunks_1", PageNum: 1, Position: 1, Text: "Dogs are mammals too."},
		{DocumentID: "doc-chunks", ChunkID: "doc-chunks_2", PageNum: 2, Position: 2, Text: "Birds are not."},
	}
	require.NoError(t, repo.SaveChunks(chunks))

	t.Run("get in position order", func(t *testing.T) {
		got, err := repo.GetChunks("doc-chunks")
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, chunk := range got {
			assert.Equal(t, i, chunk.Position)
		}
	})

	t.Run("get by page", func(t *testing.T) {
		got, err := repo.GetChunksByPage("doc-chunks", 1)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = repo.GetChunksByPage("doc-chunks", 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Birds are not.", got[0].Text)
	})

	t.Run("count", func(t *testing.T) {
		count, err := repo.CountChunks("doc-chunks")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("duplicate chunk id rejected", func(t *testing.T) {
		err := repo.SaveChunk(&models.Chunk{
			DocumentID: "doc-chunks",
			ChunkID:    "doc-chunks_0",
			PageNum:    1,
			Position:   0,
			Text:       "duplicate",
		})
		assert.Error(t, err, "分块ID唯一索引应拒绝重复写入")
	})

	t.Run("delete chunks", func(t *testing.T) {
		require.NoError(t, repo.DeleteChunks("doc-chunks"))

		count, err := repo.CountChunks("doc-chunks")
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestDocumentRepository_Delete(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewDocumentRepository()
	createTestDocument(t, repo, "doc-del")
	require.NoError(t, repo.SaveChunk(&models.Chunk{
		DocumentID: "doc-del",
		ChunkID:    "doc-del_0",
		PageNum:    1,
		Position:   0,
		Text:       "to be removed",
	}))

	require.NoError(t, repo.Delete("doc-del"))

	_, err := repo.GetByID("doc-del")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	count, err := repo.CountChunks("doc-del")
	require.NoError(t, err)
	assert.Zero(t, count, "删除文档应级联删除分块")
}
