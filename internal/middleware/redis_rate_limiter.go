package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// incrExpire 原子地自增并在首次写入时设置过期时间
var incrExpire = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

const rateLimitKeyPrefix = "screen:ratelimit:"

// RedisRateLimiter 基于 Redis 固定窗口的限流，多实例共享计数
//
// 每个窗口允许 limit 次请求；Redis 出错时放行。
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	log    logger.Logger
}

// NewRedisRateLimiter 创建限流器。burst 作为每个窗口的上限，窗口长度为 burst/perSecond。
func NewRedisRateLimiter(client redis.UniversalClient, perSecond float64, burst int, log logger.Logger) *RedisRateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(perSecond)))
	}
	window := time.Second
	if perSecond > 0 {
		window = time.Duration(float64(burst) / perSecond * float64(time.Second))
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &RedisRateLimiter{
		client: client,
		limit:  int64(burst),
		window: window,
		log:    log.WithFields(logger.String("component", "rate_limiter")),
	}
}

// Allow 对 key 计数一次，返回是否允许
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrExpire.Run(ctx, rl.client, []string{rateLimitKeyPrefix + key}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("rate limit check: %w", err)
	}
	return n <= rl.limit, nil
}

// Limit 限流中间件
func (rl *RedisRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := rl.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			rl.log.WithContext(c.Request.Context()).Warn("Rate limiter unavailable, allowing request", logger.Error(err))
		}
		if !allowed {
			rejectTooMany(c, rl.window)
			return
		}
		c.Next()
	}
}
