package handler

import (
	"net/http"

	"github.com/fyerfyer/semantic-splitter/api/middleware"
	"github.com/fyerfyer/semantic-splitter/api/model"
	"github.com/fyerfyer/semantic-splitter/internal/document"
	"github.com/fyerfyer/semantic-splitter/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SplitHandler 分块处理器
// 只做分块和页码归属，不触碰任何存储
type SplitHandler struct {
	splitter *services.SplitterService
	logger   *logrus.Logger
}

// NewSplitHandler 创建分块处理器
func NewSplitHandler(splitter *services.SplitterService) *SplitHandler {
	return &SplitHandler{
		splitter: splitter,
		logger:   middleware.GetLogger(),
	}
}

// Split 处理分块请求
// POST /api/split
func (h *SplitHandler) Split(c *gin.Context) {
	var req model.SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid split request", err.Error()))
		return
	}

	pages := document.BuildPages(req.Pages)

	var chunks []document.SplitPage
	for chunk, err := range h.splitter.SplitPages(c.Request.Context(), req.DocID, pages) {
		if err != nil {
			h.logger.WithError(err).Warn("Split pipeline failed")
			middleware.HandleError(c, middleware.NewBusinessError("failed to split document", err.Error()))
			return
		}
		chunks = append(chunks, chunk)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SplitResponse{
		DocID:  req.DocID,
		Chunks: model.ConvertChunks(chunks),
	}))
}
