package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/semantic-splitter/api/middleware"
	"github.com/fyerfyer/semantic-splitter/api/model"
	"github.com/fyerfyer/semantic-splitter/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SearchHandler 检索处理器
type SearchHandler struct {
	retrieval *services.RetrievalService
	logger    *logrus.Logger
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(retrieval *services.RetrievalService) *SearchHandler {
	return &SearchHandler{
		retrieval: retrieval,
		logger:    middleware.GetLogger(),
	}
}

// Search 执行相似度检索
// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid search request", err.Error()))
		return
	}

	opts := &services.SearchOptions{
		TopK:   req.TopK,
		DocIDs: req.DocIDs,
	}

	results, err := h.retrieval.Retrieve(c.Request.Context(), req.Query, opts)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) || errors.Is(err, services.ErrInvalidTopK) {
			middleware.HandleError(c, middleware.NewValidationError("invalid search parameters", err.Error()))
			return
		}
		h.logger.WithError(err).WithField("query", req.Query).Error("Search failed")
		middleware.HandleError(c, middleware.NewInternalError("failed to search chunks", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SearchResponse{
		Query:   req.Query,
		Results: model.ConvertRetrieved(results),
	}))
}
