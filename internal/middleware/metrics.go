package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/listen-stream/playlist-screen/pkg/telemetry"
)

// Metrics 记录 http_requests_total 与 http_request_duration_seconds
func Metrics(p *telemetry.Provider) (gin.HandlerFunc, error) {
	requests, err := p.NewHTTPRequestCounter()
	if err != nil {
		return nil, err
	}
	duration, err := p.NewHTTPDurationHistogram()
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			// 未匹配路由统一归类，避免标签基数爆炸
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)

		ctx := c.Request.Context()
		requests.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}, nil
}
