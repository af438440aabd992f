package cache

import (
	"context"
	"time"
)

// StaleCache L3降级缓存，保留时间比L2长
type StaleCache struct {
	redis    *RedisCache
	staleTTL time.Duration
}

// NewStaleCache 创建降级缓存
func NewStaleCache(redis *RedisCache, staleTTL time.Duration) *StaleCache {
	return &StaleCache{
		redis:    redis,
		staleTTL: staleTTL,
	}
}

// GetStale 获取stale数据
func (s *StaleCache) GetStale(ctx context.Context, key string) ([]byte, error) {
	return s.redis.Get(ctx, staleKey(key))
}

// SetStale 设置stale数据
func (s *StaleCache) SetStale(ctx context.Context, key string, data []byte) error {
	return s.redis.Set(ctx, staleKey(key), data, s.staleTTL)
}

// DeleteStale 删除stale数据
func (s *StaleCache) DeleteStale(ctx context.Context, key string) error {
	return s.redis.Delete(ctx, staleKey(key))
}

// StaleAge 距离上次写入的时间
func (s *StaleCache) StaleAge(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, staleKey(key))
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, ErrCacheMiss
	}
	return s.staleTTL - ttl, nil
}

func staleKey(key string) string {
	return "stale:" + key
}
