package model

import (
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/document"
	"github.com/fyerfyer/semantic-splitter/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// ChunkResult 单个分块的归属结果
type ChunkResult struct {
	PageNum int    `json:"page_num"` // 分块归属的页码
	Text    string `json:"text"`     // 分块文本
}

// SplitResponse 纯分块响应
type SplitResponse struct {
	DocID  string        `json:"doc_id"` // 文档ID
	Chunks []ChunkResult `json:"chunks"` // 归属后的分块序列
}

// IngestResponse 分块入库响应
type IngestResponse struct {
	DocID      string `json:"doc_id"`      // 文档ID
	ChunkCount int    `json:"chunk_count"` // 入库的分块数量
	Status     string `json:"status"`      // 文档状态
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	DocID      string `json:"doc_id"`          // 文档ID
	Name       string `json:"name"`            // 文档名称
	Status     string `json:"status"`          // 处理状态
	PageCount  int    `json:"page_count"`      // 页数
	ChunkCount int    `json:"chunk_count"`     // 分块数量
	Error      string `json:"error,omitempty"` // 错误信息（如果有）
	CreatedAt  string `json:"created_at"`      // 创建时间
	UpdatedAt  string `json:"updated_at"`      // 更新时间
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	DocID      string    `json:"doc_id"`      // 文档ID
	Name       string    `json:"name"`        // 文档名称
	Status     string    `json:"status"`      // 状态
	Tags       string    `json:"tags"`        // 标签
	UploadTime time.Time `json:"upload_time"` // 登记时间
	ChunkCount int       `json:"chunk_count"` // 分块数量
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int            `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	DocID   string `json:"doc_id"`  // 文档ID
}

// SearchResultInfo 检索结果项
type SearchResultInfo struct {
	Text     string  `json:"text"`     // 分块文本
	DocID    string  `json:"doc_id"`   // 所属文档ID
	ChunkID  string  `json:"chunk_id"` // 分块ID
	PageNum  int     `json:"page_num"` // 归属页码
	Position int     `json:"position"` // 分块序号
	Score    float32 `json:"score"`    // 相似度得分
}

// SearchResponse 检索响应
type SearchResponse struct {
	Query   string             `json:"query"`   // 查询文本
	Results []SearchResultInfo `json:"results"` // 按相似度降序的结果
}

// ConvertChunks 将分块结果转换为响应结构
func ConvertChunks(chunks []document.SplitPage) []ChunkResult {
	results := make([]ChunkResult, len(chunks))
	for i, chunk := range chunks {
		results[i] = ChunkResult{
			PageNum: chunk.PageNum,
			Text:    chunk.Text,
		}
	}
	return results
}

// ConvertRetrieved 将检索结果转换为响应结构
func ConvertRetrieved(results []services.RetrievedChunk) []SearchResultInfo {
	if len(results) == 0 {
		return []SearchResultInfo{}
	}

	infos := make([]SearchResultInfo, len(results))
	for i, res := range results {
		infos[i] = SearchResultInfo{
			Text:     res.Text,
			DocID:    res.DocID,
			ChunkID:  res.ChunkID,
			PageNum:  res.PageNum,
			Position: res.Position,
			Score:    res.Score,
		}
	}
	return infos
}
