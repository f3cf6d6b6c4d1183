package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/fyerfyer/semantic-splitter/api/middleware"
	"github.com/fyerfyer/semantic-splitter/api/model"
	"github.com/fyerfyer/semantic-splitter/internal/document"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"github.com/fyerfyer/semantic-splitter/internal/repository"
	"github.com/fyerfyer/semantic-splitter/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 文档处理器
// 负责文档的分块入库、状态查询、列表和删除
type DocumentHandler struct {
	splitter *services.SplitterService
	repo     repository.DocumentRepository
	logger   *logrus.Logger
}

// NewDocumentHandler 创建文档处理器
// splitter必须配置了向量库，否则入库接口无法工作
func NewDocumentHandler(splitter *services.SplitterService, repo repository.DocumentRepository) *DocumentHandler {
	return &DocumentHandler{
		splitter: splitter,
		repo:     repo,
		logger:   middleware.GetLogger(),
	}
}

// IngestDocument 分块并入库一个文档
// POST /api/documents
func (h *DocumentHandler) IngestDocument(c *gin.Context) {
	var req model.SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid ingest request", err.Error()))
		return
	}

	// 在这里生成文档ID，保证响应里能带回去
	docID := req.DocID
	if docID == "" {
		docID = uuid.New().String()
	}

	pages := document.BuildPages(req.Pages)

	chunkCount := 0
	for _, err := range h.splitter.SplitPages(c.Request.Context(), docID, pages) {
		if err != nil {
			h.logger.WithError(err).WithField("doc_id", docID).Error("Document ingestion failed")
			middleware.HandleError(c, middleware.NewBusinessError("failed to ingest document", err.Error()))
			return
		}
		chunkCount++
	}

	status := models.DocStatusCompleted
	if req.Tags != "" {
		h.tagDocument(docID, req.Tags)
	}
	if doc, err := h.repo.GetByID(docID); err == nil {
		status = doc.Status
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.IngestResponse{
		DocID:      docID,
		ChunkCount: chunkCount,
		Status:     string(status),
	}))
}

// GetDocumentStatus 查询文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	doc, err := h.repo.GetByID(req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("document not found: "+req.ID))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("failed to query document", err.Error()))
		return
	}

	resp := model.DocumentStatusResponse{
		DocID:      doc.ID,
		Name:       doc.Name,
		Status:     string(doc.Status),
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
		Error:      doc.Error,
		CreatedAt:  doc.UploadedAt.Format(time.RFC3339),
		UpdatedAt:  doc.UpdatedAt.Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments 列出文档
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid list request", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}
	if req.Name != "" {
		filters["name"] = req.Name
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	docs, total, err := h.repo.List(offset, req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to list documents", err.Error()))
		return
	}

	infos := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = model.DocumentInfo{
			DocID:      doc.ID,
			Name:       doc.Name,
			Status:     string(doc.Status),
			Tags:       doc.Tags,
			UploadTime: doc.UploadedAt,
			ChunkCount: doc.ChunkCount,
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     int(total),
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}))
}

// DeleteDocument 删除文档及其向量和分块
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	if _, err := h.repo.GetByID(req.ID); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("document not found: "+req.ID))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("failed to query document", err.Error()))
		return
	}

	if err := h.splitter.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to delete document", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		DocID:   req.ID,
	}))
}

// tagDocument 给入库后的文档记录补上标签
func (h *DocumentHandler) tagDocument(docID string, tags string) {
	doc, err := h.repo.GetByID(docID)
	if err != nil {
		h.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to load document for tagging")
		return
	}
	doc.Tags = tags
	if err := h.repo.Update(doc); err != nil {
		h.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to update document tags")
	}
}
