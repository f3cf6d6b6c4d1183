package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/semantic-splitter/api"
	"github.com/fyerfyer/semantic-splitter/api/handler"
	"github.com/fyerfyer/semantic-splitter/api/middleware"
	splitterconfig "github.com/fyerfyer/semantic-splitter/config"
	"github.com/fyerfyer/semantic-splitter/internal/cache"
	"github.com/fyerfyer/semantic-splitter/internal/chunker"
	"github.com/fyerfyer/semantic-splitter/internal/database"
	"github.com/fyerfyer/semantic-splitter/internal/embedding"
	"github.com/fyerfyer/semantic-splitter/internal/repository"
	"github.com/fyerfyer/semantic-splitter/internal/services"
	"github.com/fyerfyer/semantic-splitter/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// .env不存在时静默跳过
	_ = godotenv.Load()

	var (
		configFile = flag.String("config", "", "Path to config file")
		mode       = flag.String("mode", "release", "Run mode (debug/release)")
	)
	flag.Parse()

	cfg, err := splitterconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(*mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting semantic splitter service...")

	if err := setupDatabase(cfg.Database, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	vectorDB, err := setupVectorDB(cfg.VectorDB, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	repo := repository.NewDocumentRepository()

	// 纯分块服务不需要嵌入客户端：窗口分块器按字节数贪心打包
	pureChunker, err := chunker.NewChunker("window", chunker.Config{
		MaxChunkSize: cfg.Chunker.MaxChunkSize,
	})
	if err != nil {
		logger.Fatalf("Failed to create window chunker: %v", err)
	}
	pureSplitter, err := services.NewSplitterService(
		pureChunker,
		services.WithMaxChunkSize(cfg.Chunker.MaxChunkSize),
		services.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("Failed to create splitter service: %v", err)
	}

	// 入库服务使用配置的分块器（默认语义分块）
	storeChunker, err := chunker.NewChunker(cfg.Chunker.Type, chunker.Config{
		MaxChunkSize:        cfg.Chunker.MaxChunkSize,
		SimilarityThreshold: cfg.Chunker.SimilarityThreshold,
		Embedder:            embedder,
		BatchSize:           cfg.Chunker.BatchSize,
		MaxWorkers:          cfg.Chunker.MaxWorkers,
	})
	if err != nil {
		logger.Fatalf("Failed to create %s chunker: %v", cfg.Chunker.Type, err)
	}
	storeSplitter, err := services.NewSplitterService(
		storeChunker,
		services.WithVectorDB(vectorDB),
		services.WithEmbedder(embedder),
		services.WithDocumentRepository(repo),
		services.WithMaxChunkSize(cfg.Chunker.MaxChunkSize),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("Failed to create storage splitter service: %v", err)
	}

	retrievalOpts := []services.RetrievalOption{
		services.WithTopK(cfg.Retrieval.TopK),
		services.WithMinScore(cfg.Retrieval.MinScore),
		services.WithRetrievalLogger(logger),
	}
	if cfg.Cache.Enable {
		cacheService, err := setupCache(cfg.Cache)
		if err != nil {
			logger.Warnf("Failed to initialize cache, running without it: %v", err)
		} else {
			retrievalOpts = append(retrievalOpts,
				services.WithCache(cacheService),
				services.WithCacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
			)
		}
	}
	retrieval, err := services.NewRetrievalService(embedder, vectorDB, retrievalOpts...)
	if err != nil {
		logger.Fatalf("Failed to create retrieval service: %v", err)
	}

	router := api.SetupRouter(
		handler.NewSplitHandler(pureSplitter),
		handler.NewDocumentHandler(storeSplitter, repo),
		handler.NewSearchHandler(retrieval),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 设置日志系统
// 配置了日志文件时用lumberjack做滚动切割
func setupLogger(cfg splitterconfig.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.File != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
	}

	return logger
}

// setupDatabase 设置数据库
func setupDatabase(cfg splitterconfig.DatabaseConfig, logger *logrus.Logger) error {
	return database.Setup(&database.Config{
		Type: cfg.Type,
		DSN:  cfg.DSN,
	}, logger)
}

// setupVectorDB 设置向量数据库
func setupVectorDB(cfg splitterconfig.VectorDBConfig, logger *logrus.Logger) (vectordb.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector database directory: %v", err)
	}

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.Type,
		Path:              cfg.Path,
		Dimension:         cfg.Dim,
		DistanceType:      parseDistance(cfg.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		// FAISS不可用时回退到内存实现
		logger.Warnf("Failed to initialize %s vector database: %v, falling back to memory", cfg.Type, err)
		return vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.Dim,
			DistanceType: parseDistance(cfg.Distance),
		})
	}

	return repo, nil
}

// parseDistance 解析距离度量配置
func parseDistance(name string) vectordb.DistanceType {
	switch name {
	case "l2", "euclidean":
		return vectordb.Euclidean
	case "dot":
		return vectordb.DotProduct
	default:
		return vectordb.Cosine
	}
}

// setupEmbedding 设置嵌入模型客户端
func setupEmbedding(cfg splitterconfig.EmbedConfig) (embedding.Client, error) {
	apiKey := cfg.APIKey
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" {
		apiKey = key
	}
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	return embedding.NewClient(cfg.Provider,
		embedding.WithAPIKey(apiKey),
		embedding.WithEndpoint(cfg.Endpoint),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithMaxRetries(cfg.MaxRetries),
	)
}

// setupCache 设置检索缓存
func setupCache(cfg splitterconfig.CacheConfig) (cache.Cache, error) {
	return cache.NewCache(cache.Config{
		Type:            cfg.Type,
		RedisAddr:       cfg.Address,
		RedisPassword:   cfg.Password,
		RedisDB:         cfg.DB,
		DefaultTTL:      time.Duration(cfg.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	})
}
