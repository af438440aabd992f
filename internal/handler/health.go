package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// 健康状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// 依赖状态
const (
	DependencyUp       = "up"
	DependencyDown     = "down"
	DependencyDisabled = "disabled"
)

const healthCheckTimeout = 3 * time.Second

// Pinger 可探活的依赖，cache.Layer 实现了该接口
type Pinger interface {
	Ping(ctx context.Context) error
	Tiered() bool
}

// HealthChecker 健康检查器
type HealthChecker struct {
	cache       Pinger
	catalogSize func() int
	service     string
	version     string
	log         logger.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(cache Pinger, catalogSize func() int, service, version string, log logger.Logger) *HealthChecker {
	return &HealthChecker{
		cache:       cache,
		catalogSize: catalogSize,
		service:     service,
		version:     version,
		log:         log,
	}
}

// HealthCheckResponse 健康检查响应
type HealthCheckResponse struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    int64                       `json:"timestamp"`
	CatalogSize  int                         `json:"catalog_size"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

// DependencyStatus 依赖状态
type DependencyStatus struct {
	Status  string `json:"status"`
	Latency int64  `json:"latency"` // ms
	Error   string `json:"error,omitempty"`
}

// Evaluate 执行健康检查
//
// 目录为空时不可用；redis 不可达时仍可用内存缓存服务，视为降级。
func (hc *HealthChecker) Evaluate(ctx context.Context) HealthCheckResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp := HealthCheckResponse{
		Status:       StatusHealthy,
		Service:      hc.service,
		Version:      hc.version,
		Timestamp:    time.Now().Unix(),
		CatalogSize:  hc.catalogSize(),
		Dependencies: make(map[string]DependencyStatus, 1),
	}

	redisStatus := hc.checkRedis(ctx)
	resp.Dependencies["redis"] = redisStatus

	switch {
	case resp.CatalogSize == 0:
		resp.Status = StatusUnhealthy
	case redisStatus.Status == DependencyDown:
		resp.Status = StatusDegraded
	}
	return resp
}

// Check gin handler
func (hc *HealthChecker) Check(c *gin.Context) {
	resp := hc.Evaluate(c.Request.Context())
	if resp.Status != StatusHealthy {
		hc.log.WithContext(c.Request.Context()).Warn("Health check not healthy",
			logger.String("status", resp.Status),
			logger.Int("catalog_size", resp.CatalogSize),
		)
	}

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// checkRedis 检查Redis连接
func (hc *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	if hc.cache == nil || !hc.cache.Tiered() {
		return DependencyStatus{Status: DependencyDisabled}
	}

	start := time.Now()
	err := hc.cache.Ping(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return DependencyStatus{Status: DependencyDown, Latency: latency, Error: err.Error()}
	}
	return DependencyStatus{Status: DependencyUp, Latency: latency}
}
