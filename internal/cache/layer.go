package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/listen-stream/playlist-screen/pkg/breaker"
	"github.com/listen-stream/playlist-screen/pkg/config"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// Layer 三级缓存分层
// L1: 内存缓存（热点数据）
// L2: Redis缓存（常规缓存）
// L3: Stale缓存（重建失败时返回旧数据）
// 未启用 Redis 时 l2/l3 为 nil，只使用 L1
type Layer struct {
	l1      *MemoryCache
	l2      *RedisCache
	l3      *StaleCache
	loads   *loadGroup
	cfg     Config
	metrics Recorder
	breaker *breaker.CircuitBreaker // 保护 L2/L3，nil 表示不熔断
	logger  logger.Logger
}

// Config 缓存配置
type Config struct {
	L1MaxSize int           // L1最大条目数
	L1TTL     time.Duration // L1过期时间
	L2TTL     time.Duration // L2过期时间
	L3TTL     time.Duration // L3 stale数据保留时间
}

// DefaultConfig 默认缓存配置
func DefaultConfig() Config {
	return Config{
		L1MaxSize: 1000,
		L1TTL:     5 * time.Minute,
		L2TTL:     30 * time.Minute,
		L3TTL:     24 * time.Hour,
	}
}

// ConfigFrom converts the cache section of the service config.
func ConfigFrom(c config.CacheConfig) Config {
	return Config{
		L1MaxSize: c.L1MaxSize,
		L1TTL:     c.L1TTL,
		L2TTL:     c.L2TTL,
		L3TTL:     c.L3TTL,
	}
}

// Option configures a Layer.
type Option func(*Layer)

// WithRecorder sets the hit/miss recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Layer) {
		if r != nil {
			l.metrics = r
		}
	}
}

// WithBreaker guards every redis call of L2 and L3 with cb.
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(l *Layer) { l.breaker = cb }
}

// NewLayer 创建三级缓存，redisCache 为 nil 时仅使用内存
func NewLayer(redisCache *RedisCache, cfg Config, log logger.Logger, opts ...Option) *Layer {
	def := DefaultConfig()
	if cfg.L1MaxSize <= 0 {
		cfg.L1MaxSize = def.L1MaxSize
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = def.L1TTL
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = def.L2TTL
	}
	if cfg.L3TTL <= 0 {
		cfg.L3TTL = def.L3TTL
	}

	l := &Layer{
		l1:      NewMemoryCache(cfg.L1MaxSize, cfg.L1TTL),
		loads:   &loadGroup{},
		cfg:     cfg,
		metrics: nopRecorder{},
		logger:  log.WithFields(logger.String("component", "cache")),
	}
	if redisCache != nil {
		l.l2 = redisCache
		l.l3 = NewStaleCache(redisCache, cfg.L3TTL)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tiered reports whether the Redis tiers are in use.
func (c *Layer) Tiered() bool {
	return c.l2 != nil
}

// Get 从缓存中获取数据，依次查询 L1 -> L2
func (c *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	// L1: 内存缓存
	if data, ok := c.l1.Get(key); ok {
		c.metrics.Hit(ctx, TierL1)
		c.logger.Debug("Cache hit L1", logger.String("key", key))
		return data, nil
	}
	c.metrics.Miss(ctx, TierL1)

	if c.l2 == nil {
		return nil, ErrCacheMiss
	}

	// L2: Redis缓存
	var data []byte
	err := c.guard(func() (err error) {
		data, err = c.l2.Get(ctx, key)
		return err
	})
	if err == nil && data != nil {
		c.metrics.Hit(ctx, TierL2)
		c.logger.Debug("Cache hit L2", logger.String("key", key))
		// 回填L1
		c.l1.Set(key, data)
		return data, nil
	}
	c.metrics.Miss(ctx, TierL2)
	switch {
	case err == nil, errors.Is(err, ErrCacheMiss):
	case errors.Is(err, breaker.ErrOpen):
		c.logger.Debug("L2 cache skipped, circuit open", logger.String("key", key))
	default:
		c.logger.Warn("L2 cache unavailable", logger.String("key", key), logger.Error(err))
	}

	// L3 只在 loader 失败时由 GetWithFallback 读取
	return nil, ErrCacheMiss
}

// GetWithFallback 带降级的获取：缓存未命中时调用loader，5xx 类失败时返回stale
func (c *Layer) GetWithFallback(
	ctx context.Context,
	key string,
	loader func(ctx context.Context) ([]byte, error),
	ttl time.Duration,
) ([]byte, error) {
	if data, err := c.Get(ctx, key); err == nil {
		return data, nil
	}

	// 合并并发重建，防止缓存击穿
	return c.loads.Do(ctx, key, func() ([]byte, error) {
		// 再次检查L1（可能其他协程已填充）
		if data, ok := c.l1.Get(key); ok {
			return data, nil
		}

		data, err := loader(ctx)
		if err != nil {
			// 4xx 表示数据源已不存在该条目，旧数据不能再返回
			if c.l3 == nil || apperrors.GetHTTPStatus(err) < http.StatusInternalServerError {
				return nil, err
			}
			c.logger.Warn("Loader failed, trying stale cache", logger.String("key", key), logger.Error(err))
			var staleData []byte
			staleErr := c.guard(func() (err error) {
				staleData, err = c.l3.GetStale(ctx, key)
				return err
			})
			if staleErr == nil && staleData != nil {
				c.metrics.Hit(ctx, TierL3)
				c.logger.Info("Cache hit L3 (stale)", logger.String("key", key))
				return staleData, nil
			}
			c.metrics.Miss(ctx, TierL3)
			return nil, fmt.Errorf("loader failed and no stale data: %w", err)
		}

		if err := c.Set(ctx, key, data, ttl); err != nil {
			c.logger.Error("Failed to set cache", logger.String("key", key), logger.Error(err))
		}

		return data, nil
	})
}

// Set 写入所有缓存层级，ttl<=0 时使用 L2 默认TTL
func (c *Layer) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.L2TTL
	}

	c.l1.Set(key, data)

	if c.l2 == nil {
		return nil
	}

	if err := c.guard(func() error { return c.l2.Set(ctx, key, data, ttl) }); err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			// 熔断期间只写 L1
			return nil
		}
		c.logger.Error("Failed to set L2 cache", logger.String("key", key), logger.Error(err))
		return err
	}

	// L3失败不影响主流程
	if err := c.guard(func() error { return c.l3.SetStale(ctx, key, data) }); err != nil {
		c.logger.Warn("Failed to set L3 stale cache", logger.String("key", key), logger.Error(err))
	}

	return nil
}

// Delete 删除所有层级的缓存
func (c *Layer) Delete(ctx context.Context, key string) error {
	c.l1.Delete(key)
	c.loads.Forget(key)

	if c.l2 == nil {
		return nil
	}

	var errs []error
	if err := c.guard(func() error { return c.l2.Delete(ctx, key) }); err != nil {
		c.logger.Error("Failed to delete L2 cache", logger.String("key", key), logger.Error(err))
		errs = append(errs, err)
	}
	if err := c.guard(func() error { return c.l3.DeleteStale(ctx, key) }); err != nil {
		c.logger.Warn("Failed to delete L3 stale cache", logger.String("key", key), logger.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ping 检查 L2 连通性，纯内存模式下总是成功
func (c *Layer) Ping(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Ping(ctx)
}

// Stats 获取缓存统计
func (c *Layer) Stats() Stats {
	mode := "memory"
	if c.l2 != nil {
		mode = "tiered"
	}
	stats := Stats{
		Mode:  mode,
		L1:    c.l1.Stats(),
		Loads: c.loads.Stats(),
	}
	if c.breaker != nil {
		bs := c.breaker.Stats()
		stats.Breaker = &bs
	}
	return stats
}

// Stats 缓存统计
type Stats struct {
	Mode    string           `json:"mode"`
	L1      MemoryCacheStats `json:"l1"`
	Loads   LoadStats        `json:"loads"`
	Breaker *breaker.Stats   `json:"breaker,omitempty"`
}

// guard 通过熔断器执行 redis 调用，未命中不算失败
func (c *Layer) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}

	miss := false
	err := c.breaker.Execute(func() error {
		err := fn()
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	if miss {
		return ErrCacheMiss
	}
	return err
}

// CleanExpired 清理L1过期条目
func (c *Layer) CleanExpired() int {
	return c.l1.CleanExpired()
}
