package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 同步引擎内部用它描述"操作未产生变化"的原因，以及外部协作方（传输、拉取）的失败
type AppError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 支持 errors.Is，按错误码比较
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Withf 附加上下文信息（不改变错误码）
func (e *AppError) Withf(format string, args ...any) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     fmt.Errorf(format, args...),
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// IsNoop 判断错误是否只表示"状态未变化"（未知实体、重复事件、乱序等）
func IsNoop(err error) bool {
	code := GetCode(err)
	return code >= 20000 && code < 21000
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 参数错误 10000-10999
	CodeInvalidParams = 10001

	// 状态无变化 20000-20999
	CodeUnknownEntity  = 20001
	CodeDuplicateEvent = 20002
	CodeStaleOrdering  = 20003
	CodeEvicted        = 20004
	CodeInvalidEvent   = 20005

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeTransport   = 50004
	CodeFetch       = 50005
	CodeEngineDown  = 50006
)

// ============== 预定义错误 ==============

// 参数相关
var (
	ErrInvalidParams = NewError(CodeInvalidParams, "invalid params")
)

// 状态无变化
var (
	ErrUnknownEntity  = NewError(CodeUnknownEntity, "unknown entity")
	ErrDuplicateEvent = NewError(CodeDuplicateEvent, "duplicate event")
	ErrStaleOrdering  = NewError(CodeStaleOrdering, "event arrived before its target")
	ErrEvicted        = NewError(CodeEvicted, "target was permanently deleted")
	ErrInvalidEvent   = NewError(CodeInvalidEvent, "invalid event")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, "internal error")
	ErrTransport   = NewError(CodeTransport, "transport failure")
	ErrFetch       = NewError(CodeFetch, "history fetch failure")
	ErrEngineDown  = NewError(CodeEngineDown, "sync engine is not running")
)
