package api

import (
	"net/http"
	"os"

	"github.com/fyerfyer/semantic-splitter/api/handler"
	"github.com/fyerfyer/semantic-splitter/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置API路由
func SetupRouter(
	splitHandler *handler.SplitHandler,
	docHandler *handler.DocumentHandler,
	searchHandler *handler.SearchHandler,
) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(Cors())
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())

	// 调试模式下记录请求体
	if os.Getenv("DEBUG") == "true" {
		router.Use(middleware.RequestLogger())
	}

	apiGroup := router.Group("/api")
	{
		// 纯分块：不触碰存储
		apiGroup.POST("/split", splitHandler.Split)

		// 文档入库和管理
		docGroup := apiGroup.Group("/documents")
		{
			docGroup.POST("", docHandler.IngestDocument)
			docGroup.GET("", docHandler.ListDocuments)
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)
			docGroup.DELETE("/:id", docHandler.DeleteDocument)
		}

		// 相似度检索
		apiGroup.POST("/search", searchHandler.Search)

		apiGroup.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	return router
}

// Cors 跨域请求中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
