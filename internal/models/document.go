package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusPending 文档已登记，等待分块
	DocStatusPending DocumentStatus = "pending"
	// DocStatusProcessing 文档分块处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// Document 文档数据模型
// 用于存储已分块文档的元数据信息
type Document struct {
	ID          string         `gorm:"primaryKey"`         // 文档ID，主键
	Name        string         `gorm:"not null"`           // 文档名称
	Status      DocumentStatus `gorm:"not null;index"`     // 处理状态
	PageCount   int            `gorm:"not null;default:0"` // 页数
	ChunkCount  int            `gorm:"not null;default:0"` // 分块数量
	UploadedAt  time.Time      `gorm:"not null;index"`     // 登记时间
	ProcessedAt *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt   time.Time      `gorm:"not null;index"`     // 更新时间
	Error       string         `gorm:"type:text"`          // 错误信息
	Tags        string         `gorm:"type:varchar(255)"`  // 标签，逗号分隔
	Metadata    datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// Chunk 文档分块数据模型
// 跟踪每个分块的文本、序号和页码归属
type Chunk struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string         `gorm:"not null;index"`           // 所属文档ID
	ChunkID    string         `gorm:"not null;uniqueIndex"`     // 分块唯一ID，docID_position
	PageNum    int            `gorm:"not null;index"`           // 归属页码，0表示未能定位
	Position   int            `gorm:"not null"`                 // 分块序号
	Text       string         `gorm:"type:text;not null"`       // 分块文本内容
	CreatedAt  time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time      `gorm:"not null"`                 // 更新时间
	Metadata   datatypes.JSON `gorm:"type:json"`                // 分块元数据
	VectorID   string         `gorm:"size:100"`                 // 向量数据库中的ID
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *Chunk) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (c *Chunk) BeforeUpdate(tx *gorm.DB) (err error) {
	c.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Chunk) TableName() string {
	return "chunks"
}
