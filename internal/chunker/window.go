package chunker

import (
	"context"
	"strings"
)

// WindowChunker 固定窗口分块器
// 在句子边界处尽量填满大小上限，不依赖嵌入模型
// 作为语义分块器的轻量替代实现
type WindowChunker struct {
	maxSize int
}

// NewWindowChunker 创建固定窗口分块器
func NewWindowChunker(config Config) (Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WindowChunker{maxSize: config.MaxChunkSize}, nil
}

// Name 返回分块器名称
func (c *WindowChunker) Name() string {
	return "window"
}

// Split 将文本按句子边界打包为不超过大小上限的分块
func (c *WindowChunker) Split(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	spans := splitOversized(splitSentences(text), c.maxSize)
	if len(spans) == 0 {
		return nil, nil
	}

	var chunks []string
	chunkStart := spans[0].Start
	chunkEnd := spans[0].End

	for i := 1; i < len(spans); i++ {
		span := spans[i]
		if chunkEnd-chunkStart+len(span.Text) <= c.maxSize {
			chunkEnd = span.End
			continue
		}

		chunks = append(chunks, text[chunkStart:chunkEnd])
		chunkStart = span.Start
		chunkEnd = span.End
	}
	chunks = append(chunks, text[chunkStart:chunkEnd])

	return chunks, nil
}

// 在包初始化时注册固定窗口分块器
func init() {
	RegisterChunker("window", NewWindowChunker)
}
