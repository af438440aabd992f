package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/listen-stream/playlist-screen/internal/middleware"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
)

// CodeSuccess 成功响应的 code
const CodeSuccess = 0

// Response 通用响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Error     string      `json:"error,omitempty"`   // 业务错误码，如 ARTIST_NOT_FOUND
	Details   interface{} `json:"details,omitempty"` // 错误附加信息
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		RequestID: middleware.GetRequestID(c),
	})
}

// Fail 根据错误类型写出错误响应，非业务错误一律按 500 处理
func Fail(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.ErrInternal.WithError(err)
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, Response{
		Code:      status,
		Message:   appErr.Message,
		Error:     appErr.Code,
		Details:   appErr.Details,
		RequestID: middleware.GetRequestID(c),
	})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Fail(c, apperrors.ErrInvalidRequest.WithMessage("%s", message))
}

// NotFound 404错误，用于未注册的路由
func NotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, Response{
		Code:      http.StatusNotFound,
		Message:   "Route not found",
		Error:     "ROUTE_NOT_FOUND",
		RequestID: middleware.GetRequestID(c),
	})
}
