package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

const (
	// RequestIDHeader X-Request-ID请求头
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey 上下文中的Key
	RequestIDKey = "request_id"

	maxRequestIDLen = 128
)

// RequestID 中间件：注入请求ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 优先使用客户端传入的Request ID，过长的直接丢弃
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Set(RequestIDKey, requestID)

		// 下游通过 logger.WithContext 取到 request_id
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if requestID, ok := id.(string); ok {
			return requestID
		}
	}
	return ""
}
