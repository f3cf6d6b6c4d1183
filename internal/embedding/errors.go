package embedding

import (
	"errors"
	"fmt"
)

// 常用错误定义
var (
	ErrEmptyText     = errors.New("input text cannot be empty")
	ErrRateLimited   = errors.New("too many requests, rate limit exceeded")
	ErrBatchTooLarge = errors.New("batch size exceeds provider limit")
)

// EmbeddingError 嵌入错误类型
// 区分配置错误和服务端错误，便于调用方决定是否重试
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// IsConfigError 判断是否为配置类错误（重试没有意义）
func IsConfigError(err error) bool {
	var embErr EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Code == ErrCodeInvalidAPIKey || embErr.Code == ErrCodeInvalidRequest
	}
	return false
}
