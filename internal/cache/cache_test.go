package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listen-stream/playlist-screen/pkg/breaker"
	"github.com/listen-stream/playlist-screen/pkg/config"
	apperrors "github.com/listen-stream/playlist-screen/pkg/errors"
	"github.com/listen-stream/playlist-screen/pkg/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewRedisCache(client, "")
}

type countingRecorder struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{hits: map[string]int{}, misses: map[string]int{}}
}

func (r *countingRecorder) Hit(_ context.Context, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[tier]++
}

func (r *countingRecorder) Miss(_ context.Context, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[tier]++
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(3, 100*time.Millisecond)

	cache.Set("key1", []byte("value1"))
	cache.Set("key2", []byte("value2"))
	cache.Set("key3", []byte("value3"))

	val, ok := cache.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", string(val))

	// key2 是最久未使用的
	cache.Set("key4", []byte("value4"))
	_, ok = cache.Get("key2")
	assert.False(t, ok)

	time.Sleep(150 * time.Millisecond)
	_, ok = cache.Get("key1")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Size, 3)
	assert.Equal(t, 3, stats.MaxSize)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}

func TestMemoryCache_LRU(t *testing.T) {
	cache := NewMemoryCache(3, 10*time.Second)

	cache.Set("a", []byte("1"))
	cache.Set("b", []byte("2"))
	cache.Set("c", []byte("3"))
	cache.Get("a")
	cache.Set("d", []byte("4"))

	_, ok := cache.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok, "a should still exist")
}

func TestMemoryCache_CleanExpired(t *testing.T) {
	cache := NewMemoryCache(10, 100*time.Millisecond)

	cache.Set("key1", []byte("value1"))
	cache.Set("key2", []byte("value2"))
	time.Sleep(60 * time.Millisecond)
	cache.Set("fresh", []byte("v"))
	// 读取 key1 使其移到链表头部，但不续期
	cache.Get("key1")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 2, cache.CleanExpired())
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	cache.Set("k", []byte("v"))
	cache.Get("k")

	cache.Clear()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, uint64(0), stats.Hits)
}

func TestMemoryCache_StatsByKind(t *testing.T) {
	cache := NewMemoryCache(2, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(Key("playlist", "a"), []byte("1"))
	cache.Set(Key("screen", "a"), []byte("2"))
	cache.Set("loose", []byte("3"))

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, map[string]int{"screen": 1, "other": 1}, stats.Kinds)

	now = now.Add(time.Minute)
	_, ok := cache.Get("loose")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.CleanExpired())

	stats = cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, uint64(2), stats.Expired)
	assert.Empty(t, stats.Kinds)
}

func TestLoadGroup(t *testing.T) {
	var g loadGroup
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := g.Do(context.Background(), "hot", func() ([]byte, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return []byte("result"), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "result", string(data))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	stats := g.Stats()
	assert.Equal(t, uint64(1), stats.Loads)
	assert.Equal(t, uint64(10), stats.Coalesced)
}

func TestLoadGroup_CallerCancelled(t *testing.T) {
	var g loadGroup
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Do(ctx, "slow", func() ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "screen:playlist:dua-lipa", Key("playlist", "dua-lipa"))
}

func TestLayer_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	rec := newCountingRecorder()
	layer := NewLayer(nil, Config{}, logger.NewNop(), WithRecorder(rec))

	assert.False(t, layer.Tiered())
	assert.NoError(t, layer.Ping(ctx))
	assert.Equal(t, "memory", layer.Stats().Mode)
	assert.Equal(t, DefaultConfig().L1MaxSize, layer.Stats().L1.MaxSize)

	_, err := layer.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, layer.Set(ctx, "k", []byte("v"), 0))
	data, err := layer.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))

	require.NoError(t, layer.Delete(ctx, "k"))
	_, err = layer.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Equal(t, 1, rec.hits[TierL1])
	assert.Equal(t, 2, rec.misses[TierL1])
	assert.Zero(t, rec.misses[TierL2])
}

func TestLayer_MemoryOnlyLoaderErrorPassesThrough(t *testing.T) {
	layer := NewLayer(nil, Config{}, logger.NewNop())
	boom := errors.New("boom")

	_, err := layer.GetWithFallback(context.Background(), "k", func(context.Context) ([]byte, error) {
		return nil, boom
	}, time.Minute)

	assert.ErrorIs(t, err, boom)
}

func TestLayer_Tiered(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	rec := newCountingRecorder()
	layer := NewLayer(rc, Config{L1MaxSize: 10, L1TTL: time.Minute, L2TTL: time.Minute, L3TTL: time.Hour}, logger.NewNop(), WithRecorder(rec))

	require.True(t, layer.Tiered())
	require.NoError(t, layer.Ping(ctx))

	require.NoError(t, layer.Set(ctx, "screen:playlist:a", []byte(`{"title":"A"}`), 0))
	assert.True(t, mr.Exists("screen:playlist:a"))
	assert.True(t, mr.Exists("stale:screen:playlist:a"))
	assert.Equal(t, time.Minute, mr.TTL("screen:playlist:a"))
	assert.Equal(t, time.Hour, mr.TTL("stale:screen:playlist:a"))

	// 清掉 L1 后从 L2 回填
	layer.l1.Clear()
	data, err := layer.Get(ctx, "screen:playlist:a")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"A"}`, string(data))
	assert.Equal(t, 1, rec.hits[TierL2])
	_, ok := layer.l1.Get("screen:playlist:a")
	assert.True(t, ok)

	require.NoError(t, layer.Delete(ctx, "screen:playlist:a"))
	assert.False(t, mr.Exists("screen:playlist:a"))
	assert.False(t, mr.Exists("stale:screen:playlist:a"))
}

func TestLayer_GetWithFallback(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	rec := newCountingRecorder()
	layer := NewLayer(rc, DefaultConfig(), logger.NewNop(), WithRecorder(rec))

	var calls int32
	loader := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("fresh"), nil
	}

	data, err := layer.GetWithFallback(ctx, "k", loader, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	data, err = layer.GetWithFallback(ctx, "k", loader, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// L1/L2 失效后 loader 失败，返回 stale
	layer.l1.Clear()
	mr.Del("k")
	data, err = layer.GetWithFallback(ctx, "k", func(context.Context) ([]byte, error) {
		return nil, errors.New("rebuild failed")
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.Equal(t, 1, rec.hits[TierL3])

	// 没有 stale 数据时返回错误
	_, err = layer.GetWithFallback(ctx, "other", func(context.Context) ([]byte, error) {
		return nil, errors.New("rebuild failed")
	}, time.Minute)
	assert.Error(t, err)
	assert.Equal(t, 1, rec.misses[TierL3])
}

func TestLayer_GetWithFallback_NotFoundSkipsStale(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	layer := NewLayer(rc, DefaultConfig(), logger.NewNop())

	require.NoError(t, layer.Set(ctx, "gone", []byte("old"), time.Minute))
	layer.l1.Clear()
	mr.Del("gone")
	require.True(t, mr.Exists("stale:gone"))

	tests := []struct {
		name      string
		loaderErr error
		wantData  string
	}{
		{"not found", apperrors.ErrArtistNotFound, ""},
		{"bad request", apperrors.ErrInvalidRequest, ""},
		{"internal", apperrors.ErrInternal, "old"},
		{"plain error", errors.New("redis timeout"), "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := layer.GetWithFallback(ctx, "gone", func(context.Context) ([]byte, error) {
				return nil, tt.loaderErr
			}, time.Minute)
			if tt.wantData == "" {
				assert.ErrorIs(t, err, tt.loaderErr)
				assert.Nil(t, data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(data))
			layer.l1.Clear()
		})
	}
}

func TestLayer_GetWithFallback_Concurrent(t *testing.T) {
	layer := NewLayer(nil, DefaultConfig(), logger.NewNop())
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := layer.GetWithFallback(context.Background(), "hot", func(context.Context) ([]byte, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(50 * time.Millisecond)
				return []byte("v"), nil
			}, time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, "v", string(data))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLayer_RedisDown(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	layer := NewLayer(rc, DefaultConfig(), logger.NewNop())
	mr.Close()

	assert.Error(t, layer.Ping(ctx))

	// L2 故障时 loader 结果仍然返回
	data, err := layer.GetWithFallback(ctx, "k", func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestLayer_BreakerOpensWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	cb := breaker.New(breaker.Config{Name: "redis", MaxFailures: 2, OpenTimeout: time.Hour})
	layer := NewLayer(rc, DefaultConfig(), logger.NewNop(), WithBreaker(cb))

	// 未命中不计入失败
	_, err := layer.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, breaker.StateClosed, cb.State())

	mr.Close()

	for i := 0; i < 3; i++ {
		_, err := layer.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}
	assert.Equal(t, breaker.StateOpen, cb.State())

	// 熔断期间写入只落 L1
	require.NoError(t, layer.Set(ctx, "k", []byte("v"), time.Minute))
	data, err := layer.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))

	stats := layer.Stats()
	require.NotNil(t, stats.Breaker)
	assert.Equal(t, breaker.StateOpen, stats.Breaker.State)
}

func TestLayer_WarmUp(t *testing.T) {
	ctx := context.Background()
	mr, rc := setupRedis(t)
	layer := NewLayer(rc, DefaultConfig(), logger.NewNop())

	err := layer.WarmUp(ctx, []WarmUpEntry{
		{Key: Key("playlist", "a"), Data: map[string]string{"title": "A"}},
		{Key: Key("playlist", "b"), Data: map[string]string{"title": "B"}},
	}, time.Minute)
	require.NoError(t, err)

	got, err := mr.Get("screen:playlist:a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"A"}`, got)
	assert.True(t, mr.Exists("stale:screen:playlist:b"))
	assert.Equal(t, 2, layer.Stats().L1.Size)

	age, err := layer.l3.StaleAge(ctx, Key("playlist", "a"))
	require.NoError(t, err)
	assert.Less(t, age, time.Minute)
}

func TestLayer_WarmUpMarshalFailure(t *testing.T) {
	layer := NewLayer(nil, DefaultConfig(), logger.NewNop())

	err := layer.WarmUp(context.Background(), []WarmUpEntry{
		{Key: "ok", Data: 1},
		{Key: "bad", Data: make(chan int)},
	}, 0)

	assert.Error(t, err)
	assert.Equal(t, 1, layer.Stats().L1.Size)
}

func TestStaleCache_AgeMissing(t *testing.T) {
	_, rc := setupRedis(t)
	s := NewStaleCache(rc, time.Hour)

	_, err := s.StaleAge(context.Background(), "none")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CacheConfig{L1MaxSize: 5, L1TTL: time.Second, L2TTL: 2 * time.Second, L3TTL: 3 * time.Second})
	assert.Equal(t, Config{L1MaxSize: 5, L1TTL: time.Second, L2TTL: 2 * time.Second, L3TTL: 3 * time.Second}, cfg)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func BenchmarkMemoryCacheGet(b *testing.B) {
	cache := NewMemoryCache(1000, 5*time.Minute)
	for i := 0; i < 100; i++ {
		cache.Set(Key("playlist", string(rune('a'+i%26))), []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(Key("playlist", string(rune('a'+i%26))))
	}
}
