package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/listen-stream/playlist-screen/pkg/config"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
)

const (
	defaultIdleTTL         = 10 * time.Minute
	defaultCleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端 IP 限流
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int

	idleTTL         time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	return &RateLimiter{
		visitors:        make(map[string]*visitor),
		rate:            rate.Limit(perSecond),
		burst:           burst,
		idleTTL:         defaultIdleTTL,
		cleanupInterval: defaultCleanupInterval,
		lastCleanup:     time.Now(),
		now:             time.Now,
	}
}

// NewRateLimiterFromConfig 从配置创建限流器
func NewRateLimiterFromConfig(cfg config.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg.PerSecond, cfg.Burst)
}

// getLimiter 获取IP限流器，顺带清理长时间不活跃的条目
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) >= rl.cleanupInterval {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idleTTL {
				delete(rl.visitors, key)
			}
		}
		rl.lastCleanup = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Size 当前跟踪的客户端数量
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Limit 限流中间件
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())
		if !limiter.Allow() {
			retry := time.Second
			if rl.rate > 0 {
				retry = time.Duration(float64(time.Second) / float64(rl.rate))
			}
			rejectTooMany(c, retry)
			return
		}

		c.Next()
	}
}

// rejectTooMany 写出 429 与 Retry-After
func rejectTooMany(c *gin.Context, retry time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(retry.Seconds())))))
	abortWithError(c, apperrors.ErrTooManyRequests, GetRequestID(c))
}
