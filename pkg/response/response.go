package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	syncErrors "sudooom.im.sync/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 错误码常量（使用 pkg/errors 包的定义）
const (
	CodeSuccess       = syncErrors.CodeSuccess
	CodeInvalidParams = syncErrors.CodeInvalidParams

	// 状态无变化 20000-20999
	CodeUnknownEntity  = syncErrors.CodeUnknownEntity
	CodeDuplicateEvent = syncErrors.CodeDuplicateEvent
	CodeStaleOrdering  = syncErrors.CodeStaleOrdering
	CodeEvicted        = syncErrors.CodeEvicted
	CodeInvalidEvent   = syncErrors.CodeInvalidEvent

	// 系统错误 50000-50999
	CodeServerError = syncErrors.CodeServerError
	CodeTransport   = syncErrors.CodeTransport
	CodeFetch       = syncErrors.CodeFetch
	CodeEngineDown  = syncErrors.CodeEngineDown
)

var codeMessages = map[int]string{
	CodeSuccess:        "success",
	CodeInvalidParams:  "参数校验失败",
	CodeUnknownEntity:  "目标不存在",
	CodeDuplicateEvent: "重复操作",
	CodeStaleOrdering:  "目标尚未到达",
	CodeEvicted:        "目标已被永久删除",
	CodeInvalidEvent:   "事件无效",
	CodeServerError:    "服务器内部错误",
	CodeTransport:      "消息通道异常",
	CodeFetch:          "历史消息拉取失败",
	CodeEngineDown:     "同步引擎未运行",
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	message := codeMessages[code]
	if message == "" {
		message = "unknown error"
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorFromAppError 从 AppError 生成错误响应
func ErrorFromAppError(c *gin.Context, err error) {
	code := syncErrors.GetCode(err)
	message := syncErrors.GetMessage(err)
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// Unavailable 引擎不可用
func Unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, Response{
		Code:    CodeEngineDown,
		Message: codeMessages[CodeEngineDown],
		Data:    nil,
	})
}
