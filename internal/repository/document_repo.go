package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/database"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"gorm.io/gorm"
)

// docRepository 文档仓储实现
type docRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{
		db: database.MustDB(),
	}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

// Create 创建文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Create(doc).Error
}

// Update 更新文档记录
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Save(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档列表，支持分页和筛选
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})

	if filters != nil {
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.DocumentStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			}
		}

		if tags, ok := filters["tags"].(string); ok && tags != "" {
			query = query.Where("tags LIKE ?", "%"+tags+"%")
		}

		if name, ok := filters["name"].(string); ok && name != "" {
			query = query.Where("name LIKE ?", "%"+name+"%")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// Delete 删除文档及其所有分块
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 终态记录处理完成时间
	if status == models.DocStatusCompleted || status == models.DocStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SaveChunk 保存单个分块
func (r *docRepository) SaveChunk(chunk *models.Chunk) error {
	return r.db.Create(chunk).Error
}

// SaveChunks 批量保存分块
func (r *docRepository) SaveChunks(chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// 使用事务批量插入
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// GetChunks 按序号顺序获取文档的所有分块
func (r *docRepository) GetChunks(docID string) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&chunks).Error
	return chunks, err
}

// GetChunksByPage 获取文档某一页的所有分块
func (r *docRepository) GetChunksByPage(docID string, pageNum int) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := r.db.Where("document_id = ? AND page_num = ?", docID, pageNum).
		Order("position ASC").
		Find(&chunks).Error
	return chunks, err
}

// CountChunks 统计文档的分块数量
func (r *docRepository) CountChunks(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.Chunk{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteChunks 删除文档的所有分块
func (r *docRepository) DeleteChunks(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.Chunk{}).Error
}

// WithContext 创建带有上下文的仓储
func (r *docRepository) WithContext(ctx context.Context) DocumentRepository {
	return &docRepository{db: r.db.WithContext(ctx)}
}
