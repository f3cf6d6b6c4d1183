package services

import "errors"

var (
	// ErrEmptyQuery 查询文本为空错误
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidTopK topK非法错误，必须为正数
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrChunkerRequired 分块器未配置错误
	ErrChunkerRequired = errors.New("splitter service requires a chunker")

	// ErrEmbedderRequired 入库模式下嵌入客户端未配置错误
	ErrEmbedderRequired = errors.New("storage mode requires an embedding client")

	// ErrOversizeChunk 分块器违反大小上限的契约错误
	ErrOversizeChunk = errors.New("chunker returned a chunk exceeding the max chunk size")
)
