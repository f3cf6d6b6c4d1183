package services

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/fyerfyer/semantic-splitter/internal/chunker"
	"github.com/fyerfyer/semantic-splitter/internal/document"
	"github.com/fyerfyer/semantic-splitter/internal/embedding"
	"github.com/fyerfyer/semantic-splitter/internal/models"
	"github.com/fyerfyer/semantic-splitter/internal/repository"
	"github.com/fyerfyer/semantic-splitter/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SplitterService 分块流水线服务
// 负责协调页面拼接、语义分块、页码归属，以及可选的向量化入库
// 向量库和元数据仓储是可选能力：两者都未配置时流水线只做分块和归属
type SplitterService struct {
	chunker   chunker.Chunker               // 语义分块器
	embedder  embedding.Client              // 嵌入模型客户端，仅入库模式需要
	vectorDB  vectordb.Repository           // 向量数据库，可选
	repo      repository.DocumentRepository // 文档元数据存储，可选
	maxSize   int                           // 分块大小上限，用于校验分块器契约
	batchSize int                           // 向量化批处理大小
	timeout   time.Duration                 // 入库模式的处理超时时间
	logger    *logrus.Logger                // 日志记录器
}

// SplitterOption 分块服务配置选项
type SplitterOption func(*SplitterService)

// NewSplitterService 创建一个新的分块流水线服务
func NewSplitterService(c chunker.Chunker, opts ...SplitterOption) (*SplitterService, error) {
	if c == nil {
		return nil, ErrChunkerRequired
	}

	srv := &SplitterService{
		chunker:   c,
		maxSize:   500,
		batchSize: 16,
		timeout:   time.Minute * 5,
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.maxSize <= 0 {
		return nil, chunker.ErrInvalidChunkSize
	}
	// 入库模式必须能生成向量
	if srv.vectorDB != nil && srv.embedder == nil {
		return nil, ErrEmbedderRequired
	}

	return srv, nil
}

// WithVectorDB 设置向量数据库，启用入库模式
func WithVectorDB(db vectordb.Repository) SplitterOption {
	return func(s *SplitterService) {
		s.vectorDB = db
	}
}

// WithEmbedder 设置嵌入模型客户端
func WithEmbedder(client embedding.Client) SplitterOption {
	return func(s *SplitterService) {
		s.embedder = client
	}
}

// WithDocumentRepository 设置文档元数据仓储
func WithDocumentRepository(repo repository.DocumentRepository) SplitterOption {
	return func(s *SplitterService) {
		s.repo = repo
	}
}

// WithMaxChunkSize 设置分块大小上限
func WithMaxChunkSize(size int) SplitterOption {
	return func(s *SplitterService) {
		s.maxSize = size
	}
}

// WithBatchSize 设置向量化批处理大小
func WithBatchSize(size int) SplitterOption {
	return func(s *SplitterService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithTimeout 设置入库模式的处理超时时间
func WithTimeout(timeout time.Duration) SplitterOption {
	return func(s *SplitterService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) SplitterOption {
	return func(s *SplitterService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// StorageEnabled 返回是否启用了入库模式
func (s *SplitterService) StorageEnabled() bool {
	return s.vectorDB != nil
}

// SplitText 对单段未分页的文本分块
// 整段文本视为单独一页
func (s *SplitterService) SplitText(ctx context.Context, docID string, text string) iter.Seq2[document.SplitPage, error] {
	return s.SplitPages(ctx, docID, document.BuildPages([]string{text}))
}

// SplitPages 对有序页面序列执行分块流水线
// 返回惰性单趟序列，消费方提前停止时后续分块不会被计算或入库
func (s *SplitterService) SplitPages(ctx context.Context, docID string, pages []document.Page) iter.Seq2[document.SplitPage, error] {
	return func(yield func(document.SplitPage, error) bool) {
		// 空输入不是错误：记录日志后什么都不产出
		if len(pages) == 0 {
			s.logger.WithField("doc_id", docID).Warn("No pages to split")
			return
		}

		ps, err := document.NewPageSet(pages)
		if err != nil {
			yield(document.SplitPage{}, fmt.Errorf("invalid page sequence: %w", err))
			return
		}
		if !ps.HasText() {
			s.logger.WithField("doc_id", docID).Warn("All page texts are empty, nothing to split")
			return
		}

		// 未指定文档ID时生成一个，保证入库的分块ID不与其他文档冲突
		if docID == "" {
			docID = uuid.New().String()
		}

		if s.StorageEnabled() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		fullText := ps.JoinText()

		chunks, err := s.chunker.Split(ctx, fullText)
		if err != nil {
			s.failDocument(docID, fmt.Sprintf("failed to split text: %v", err))
			yield(document.SplitPage{}, fmt.Errorf("failed to split text: %w", err))
			return
		}
		if len(chunks) == 0 {
			// 分块器对非空输入什么都没返回，属于异常但不算硬错误
			s.logger.WithFields(logrus.Fields{
				"doc_id":      docID,
				"text_length": len(fullText),
			}).Warn("Chunker produced no chunks for non-empty input")
			return
		}

		if s.StorageEnabled() {
			s.trackDocument(docID, ps.Len())
		}

		s.logger.WithFields(logrus.Fields{
			"doc_id":      docID,
			"page_count":  ps.Len(),
			"chunk_count": len(chunks),
			"storage":     s.StorageEnabled(),
		}).Info("Starting chunk attribution")

		// 前向搜索游标：每个分块从上一个分块结束的位置开始定位，
		// 避免重复文本被错误归属到更早的出现位置
		cursor := 0
		attribute := func(chunk string) int {
			idx := strings.Index(fullText[cursor:], chunk)
			if idx < 0 {
				// 归属失败时降级到哨兵页码，游标保持不动
				s.logger.WithFields(logrus.Fields{
					"doc_id":       docID,
					"chunk_prefix": prefix(chunk, 32),
				}).Warn("Chunk not found in source text, using sentinel page")
				return 0
			}
			start := cursor + idx
			cursor = start + len(chunk)
			return ps.FindPage(start)
		}

		position := 0
		for batchStart := 0; batchStart < len(chunks); batchStart += s.batchSize {
			batchEnd := batchStart + s.batchSize
			if batchEnd > len(chunks) {
				batchEnd = len(chunks)
			}
			batch := chunks[batchStart:batchEnd]

			select {
			case <-ctx.Done():
				yield(document.SplitPage{}, ctx.Err())
				return
			default:
			}

			// 分块器契约校验：超出上限的分块是提供方的错误，不能默默接受
			for _, chunk := range batch {
				if len(chunk) > s.maxSize {
					s.failDocument(docID, ErrOversizeChunk.Error())
					yield(document.SplitPage{}, fmt.Errorf("%w: %d > %d", ErrOversizeChunk, len(chunk), s.maxSize))
					return
				}
			}

			results := make([]document.SplitPage, len(batch))
			for i, chunk := range batch {
				results[i] = document.SplitPage{
					PageNum: attribute(chunk),
					Text:    chunk,
				}
			}

			if s.StorageEnabled() {
				if err := s.persistBatch(ctx, docID, position, batch, results); err != nil {
					s.failDocument(docID, err.Error())
					yield(document.SplitPage{}, err)
					return
				}
			}

			for _, result := range results {
				if !yield(result, nil) {
					return
				}
				position++
			}
		}

		if s.StorageEnabled() {
			s.completeDocument(docID, len(chunks))
		}
	}
}

// persistBatch 向量化一批分块并写入向量库和元数据仓储
// position是本批第一个分块在文档内的序号
func (s *SplitterService) persistBatch(ctx context.Context, docID string, position int, texts []string, results []document.SplitPage) error {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	now := time.Now()
	vdbChunks := make([]vectordb.Chunk, len(texts))
	dbChunks := make([]*models.Chunk, len(texts))
	for i := range texts {
		pos := position + i
		// 分块ID用文档ID做命名空间，重复分块不同文档互不覆盖
		chunkID := fmt.Sprintf("%s_%d", docID, pos)

		vdbChunks[i] = vectordb.Chunk{
			ID:        chunkID,
			DocID:     docID,
			PageNum:   results[i].PageNum,
			Position:  pos,
			Text:      texts[i],
			Vector:    vectors[i],
			CreatedAt: now,
		}
		dbChunks[i] = &models.Chunk{
			DocumentID: docID,
			ChunkID:    chunkID,
			PageNum:    results[i].PageNum,
			Position:   pos,
			Text:       texts[i],
			VectorID:   chunkID,
		}
	}

	if err := s.vectorDB.AddBatch(vdbChunks); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	if s.repo != nil {
		if err := s.repo.SaveChunks(dbChunks); err != nil {
			// 元数据落库失败不中断流水线，向量已经入库
			s.logger.WithError(err).WithField("doc_id", docID).Error("Failed to save chunk metadata")
		}
	}

	return nil
}

// trackDocument 入库模式下登记文档记录
func (s *SplitterService) trackDocument(docID string, pageCount int) {
	if s.repo == nil {
		return
	}

	if _, err := s.repo.GetByID(docID); err != nil {
		doc := &models.Document{
			ID:        docID,
			Name:      docID,
			Status:    models.DocStatusProcessing,
			PageCount: pageCount,
		}
		if err := s.repo.Create(doc); err != nil {
			s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to create document record")
		}
		return
	}

	if err := s.repo.UpdateStatus(docID, models.DocStatusProcessing, ""); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to mark document as processing")
	}
}

// completeDocument 入库模式下标记文档处理完成
func (s *SplitterService) completeDocument(docID string, chunkCount int) {
	if s.repo == nil {
		return
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to load document for completion")
		return
	}
	doc.Status = models.DocStatusCompleted
	doc.ChunkCount = chunkCount
	now := time.Now()
	doc.ProcessedAt = &now
	if err := s.repo.Update(doc); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to mark document as completed")
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"chunk_count": chunkCount,
	}).Info("Document splitting completed successfully")
}

// failDocument 入库模式下标记文档处理失败
func (s *SplitterService) failDocument(docID string, errorMsg string) {
	if s.repo == nil {
		return
	}

	if err := s.repo.UpdateStatus(docID, models.DocStatusFailed, errorMsg); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to mark document as failed")
	}
}

// DeleteDocument 删除文档及其相关数据
func (s *SplitterService) DeleteDocument(ctx context.Context, docID string) error {
	s.logger.WithField("doc_id", docID).Info("Deleting document")

	if s.vectorDB != nil {
		if err := s.vectorDB.DeleteByDocID(docID); err != nil {
			return fmt.Errorf("failed to delete document vectors: %w", err)
		}
	}

	if s.repo != nil {
		if err := s.repo.Delete(docID); err != nil {
			return fmt.Errorf("failed to delete document metadata: %w", err)
		}
	}

	return nil
}

// prefix 截取字符串前缀用于日志输出
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
