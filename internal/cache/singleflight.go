package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// loadGroup 合并同一 key 的并发重建，避免缓存击穿时重复生成歌单
type loadGroup struct {
	group     singleflight.Group
	loads     atomic.Uint64
	coalesced atomic.Uint64
}

// LoadStats 重建统计
type LoadStats struct {
	Loads     uint64 `json:"loads"`
	Coalesced uint64 `json:"coalesced"`
}

// Do 同一 key 同时只执行一次 fn，其余调用共享结果
// ctx 取消时调用方提前返回，fn 继续执行供其它等待者使用
func (g *loadGroup) Do(ctx context.Context, key string, fn func() ([]byte, error)) ([]byte, error) {
	ch := g.group.DoChan(key, func() (interface{}, error) {
		g.loads.Add(1)
		return fn()
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget 之后的调用重新执行 fn
func (g *loadGroup) Forget(key string) {
	g.group.Forget(key)
}

func (g *loadGroup) Stats() LoadStats {
	return LoadStats{Loads: g.loads.Load(), Coalesced: g.coalesced.Load()}
}
