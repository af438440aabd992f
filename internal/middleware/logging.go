package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// Logging 日志中间件，skipPaths 中的路径（如 /health、/metrics）不记录
func Logging(log logger.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.String("route", c.FullPath()),
			logger.String("query", query),
			logger.Int("status", status),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
			logger.String("user_agent", c.Request.UserAgent()),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("errors", c.Errors.String()))
		}

		// request_id / trace_id 由 WithContext 从请求上下文带出
		entry := log.WithContext(c.Request.Context()).WithFields(fields...)
		switch {
		case status >= 500:
			entry.Error("HTTP request error")
		case status >= 400:
			entry.Warn("HTTP request warning")
		default:
			entry.Info("HTTP request")
		}
	}
}
