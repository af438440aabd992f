package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// KeyPrefix 所有缓存 key 的命名空间
const KeyPrefix = "screen"

// Key 生成缓存 key，例如 Key("playlist", "dua-lipa") -> "screen:playlist:dua-lipa"
func Key(kind, id string) string {
	return strings.Join([]string{KeyPrefix, kind, id}, ":")
}

// WarmUpEntry 预热条目
type WarmUpEntry struct {
	Key  string
	Data interface{}
}

// WarmUp 序列化并写入所有层级，L2 通过 pipeline 批量写入
func (c *Layer) WarmUp(ctx context.Context, entries []WarmUpEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.L2TTL
	}

	c.logger.Info("Starting cache warm up", logger.Int("count", len(entries)))
	start := time.Now()

	batch := make(map[string][]byte, len(entries))
	failed := 0
	for _, entry := range entries {
		data, err := json.Marshal(entry.Data)
		if err != nil {
			c.logger.Error("Failed to marshal warm up data", logger.String("key", entry.Key), logger.Error(err))
			failed++
			continue
		}
		batch[entry.Key] = data
		c.l1.Set(entry.Key, data)
	}

	if c.l2 != nil && len(batch) > 0 {
		if err := c.guard(func() error { return c.l2.MSet(ctx, batch, ttl) }); err != nil {
			c.logger.Error("Failed to warm up L2 cache", logger.Error(err))
			return err
		}
		for key, data := range batch {
			if err := c.guard(func() error { return c.l3.SetStale(ctx, key, data) }); err != nil {
				c.logger.Warn("Failed to warm up L3 stale cache", logger.String("key", key), logger.Error(err))
			}
		}
	}

	c.logger.Info("Cache warm up completed",
		logger.Int("success", len(batch)),
		logger.Int("failed", failed),
		logger.Duration("elapsed", time.Since(start)),
	)

	if failed > 0 {
		return fmt.Errorf("warm up partially failed: %d/%d entries failed", failed, len(entries))
	}
	return nil
}
