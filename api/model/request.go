package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// SplitRequest 分块请求
// 页面文本按文档顺序排列，偏移量由服务端按拼接顺序计算
type SplitRequest struct {
	DocID string   `json:"doc_id" binding:"omitempty"`     // 可选的文档ID
	Pages []string `json:"pages" binding:"required,min=1"` // 页面文本序列
	Tags  string   `json:"tags" binding:"omitempty"`       // 文档标签，逗号分隔
}

// DocumentStatusRequest 文档状态查询请求
type DocumentStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty"` // 文档状态过滤
	Tags   string `form:"tags" json:"tags" binding:"omitempty"`     // 标签过滤
	Name   string `form:"name" json:"name" binding:"omitempty"`     // 文档名称过滤
}

// DocumentDeleteRequest 文档删除请求
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query  string   `json:"query" binding:"required"`        // 查询文本
	TopK   int      `json:"top_k" binding:"omitempty,min=1"` // 返回结果数，缺省使用服务默认值
	DocIDs []string `json:"doc_ids" binding:"omitempty"`     // 限定在指定文档内检索
}
