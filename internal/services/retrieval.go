package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/cache"
	"github.com/fyerfyer/semantic-splitter/internal/embedding"
	"github.com/fyerfyer/semantic-splitter/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// RetrievedChunk 检索结果
// 携带分块文本、来源信息和相似度得分
type RetrievedChunk struct {
	ChunkID  string  `json:"chunk_id"` // 分块ID
	DocID    string  `json:"doc_id"`   // 所属文档ID
	PageNum  int     `json:"page_num"` // 归属页码
	Position int     `json:"position"` // 分块序号
	Text     string  `json:"text"`     // 分块文本
	Score    float32 `json:"score"`    // 相似度得分
}

// RetrievalService 检索服务
// 对查询文本做向量化，在向量库中执行近邻查找
type RetrievalService struct {
	embedder embedding.Client    // 嵌入模型客户端，必须与入库时使用同一模型
	vectorDB vectordb.Repository // 向量数据库
	cache    cache.Cache         // 结果缓存，可选
	cacheTTL time.Duration       // 缓存有效期
	topK     int                 // 默认返回结果数
	minScore float32             // 最小相似度阈值
	logger   *logrus.Logger      // 日志记录器
}

// RetrievalOption 检索服务配置选项
type RetrievalOption func(*RetrievalService)

// NewRetrievalService 创建一个新的检索服务
func NewRetrievalService(embedder embedding.Client, db vectordb.Repository, opts ...RetrievalOption) (*RetrievalService, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if db == nil {
		return nil, fmt.Errorf("retrieval service requires a vector repository")
	}

	srv := &RetrievalService{
		embedder: embedder,
		vectorDB: db,
		cacheTTL: time.Minute * 30,
		topK:     5,
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.topK <= 0 {
		return nil, ErrInvalidTopK
	}

	return srv, nil
}

// WithCache 设置结果缓存
func WithCache(c cache.Cache) RetrievalOption {
	return func(s *RetrievalService) {
		s.cache = c
	}
}

// WithCacheTTL 设置缓存有效期
func WithCacheTTL(ttl time.Duration) RetrievalOption {
	return func(s *RetrievalService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithTopK 设置默认返回结果数
func WithTopK(topK int) RetrievalOption {
	return func(s *RetrievalService) {
		s.topK = topK
	}
}

// WithMinScore 设置最小相似度阈值
func WithMinScore(score float32) RetrievalOption {
	return func(s *RetrievalService) {
		s.minScore = score
	}
}

// WithRetrievalLogger 设置日志记录器
func WithRetrievalLogger(logger *logrus.Logger) RetrievalOption {
	return func(s *RetrievalService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SearchOptions 单次检索的可选参数
type SearchOptions struct {
	TopK   int      // 返回结果数，0表示使用服务默认值
	DocIDs []string // 限定在指定文档内检索
}

// Retrieve 检索与查询最相似的分块
// topK来自opts或服务默认值，非正数立即报错而不是静默返回空结果
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts *SearchOptions) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	topK := s.topK
	var docIDs []string
	if opts != nil {
		if opts.TopK != 0 {
			topK = opts.TopK
		}
		docIDs = opts.DocIDs
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	// 命中缓存时直接返回
	cacheKey := cache.QueryKey(query, topK, docIDs...)
	if s.cache != nil {
		if cached, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
			var results []RetrievedChunk
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				s.logger.WithField("cache_key", cacheKey).Debug("Retrieval cache hit")
				return results, nil
			}
		}
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := vectordb.DefaultSearchFilter()
	filter.MaxResults = topK
	filter.MinScore = s.minScore
	filter.DocIDs = docIDs

	searchResults, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	results := make([]RetrievedChunk, len(searchResults))
	for i, res := range searchResults {
		results[i] = RetrievedChunk{
			ChunkID:  res.Chunk.ID,
			DocID:    res.Chunk.DocID,
			PageNum:  res.Chunk.PageNum,
			Position: res.Chunk.Position,
			Text:     res.Chunk.Text,
			Score:    res.Score,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"query_length": len(query),
		"top_k":        topK,
		"result_count": len(results),
	}).Info("Retrieval completed")

	if s.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			if err := s.cache.Set(ctx, cacheKey, string(data), s.cacheTTL); err != nil {
				s.logger.WithError(err).Warn("Failed to cache retrieval results")
			}
		}
	}

	return results, nil
}

// RetrieveTexts 检索并只返回分块文本
func (s *RetrievalService) RetrieveTexts(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	results, err := s.Retrieve(ctx, query, &SearchOptions{TopK: topK})
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return texts, nil
}
