package repository

import "github.com/fyerfyer/semantic-splitter/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档及其分块元数据的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其所有分块
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// SaveChunk 保存单个分块
	SaveChunk(chunk *models.Chunk) error

	// SaveChunks 批量保存分块
	SaveChunks(chunks []*models.Chunk) error

	// GetChunks 按序号顺序获取文档的所有分块
	GetChunks(docID string) ([]*models.Chunk, error)

	// GetChunksByPage 获取文档某一页的所有分块
	GetChunksByPage(docID string, pageNum int) ([]*models.Chunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除文档的所有分块
	DeleteChunks(docID string) error
}
