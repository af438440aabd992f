package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// Recovery panic恢复中间件
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(c)

				log.WithContext(c.Request.Context()).WithFields(
					logger.String("path", c.Request.URL.Path),
					logger.String("panic", fmt.Sprintf("%v", err)),
					logger.String("stack", string(debug.Stack())),
				).Error("Panic recovered")

				abortWithError(c, apperrors.ErrInternal, requestID)
			}
		}()

		c.Next()
	}
}

// abortWithError 写出与 handler 相同格式的错误响应
func abortWithError(c *gin.Context, appErr *apperrors.Error, requestID string) {
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":       status,
		"message":    appErr.Message,
		"error":      appErr.Code,
		"request_id": requestID,
	})
}
