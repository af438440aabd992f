package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// MemoryCache L1 内存缓存，按最近使用淘汰，条目写入后 ttl 内有效
type MemoryCache struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	recency *list.List // 头部为最近使用

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

type memoryEntry struct {
	key       string
	kind      string
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		recency: list.New(),
	}
}

// kindOf 从 "screen:<kind>:<id>" 中取出 kind，其它格式归为 "other"
func kindOf(key string) string {
	rest, ok := strings.CutPrefix(key, KeyPrefix+":")
	if !ok {
		return "other"
	}
	kind, _, ok := strings.Cut(rest, ":")
	if !ok || kind == "" {
		return "other"
	}
	return kind
}

// Get 读取条目，读取不续期
func (m *MemoryCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}

	entry := elem.Value.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.remove(elem)
		m.expired++
		m.misses++
		return nil, false
	}

	m.recency.MoveToFront(elem)
	m.hits++
	return entry.data, true
}

// Set 写入或覆盖条目，超出容量时淘汰最久未使用的
func (m *MemoryCache) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(m.ttl)
	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.data = data
		entry.expiresAt = expiresAt
		m.recency.MoveToFront(elem)
		return
	}

	m.entries[key] = m.recency.PushFront(&memoryEntry{
		key:       key,
		kind:      kindOf(key),
		data:      data,
		expiresAt: expiresAt,
	})

	for m.recency.Len() > m.maxSize {
		m.remove(m.recency.Back())
		m.evictions++
	}
}

// Delete 删除条目
func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.remove(elem)
	}
}

// Clear 清空条目和计数
func (m *MemoryCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.recency.Init()
	m.hits, m.misses, m.evictions, m.expired = 0, 0, 0, 0
}

// CleanExpired 删除所有过期条目，返回删除数量
// 读取只移动位置不续期，链表顺序与过期时间无关，需要完整遍历
func (m *MemoryCache) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for elem := m.recency.Front(); elem != nil; {
		next := elem.Next()
		if !now.Before(elem.Value.(*memoryEntry).expiresAt) {
			m.remove(elem)
			removed++
		}
		elem = next
	}
	m.expired += uint64(removed)
	return removed
}

// remove 调用方持有锁
func (m *MemoryCache) remove(elem *list.Element) {
	m.recency.Remove(elem)
	delete(m.entries, elem.Value.(*memoryEntry).key)
}

// MemoryCacheStats L1 统计，Kinds 为按 key 类型（playlist 等）统计的条目数
type MemoryCacheStats struct {
	Size      int            `json:"size"`
	MaxSize   int            `json:"max_size"`
	Hits      uint64         `json:"hits"`
	Misses    uint64         `json:"misses"`
	HitRate   float64        `json:"hit_rate"`
	Evictions uint64         `json:"evictions"`
	Expired   uint64         `json:"expired"`
	Kinds     map[string]int `json:"kinds"`
}

// Stats 统计快照
func (m *MemoryCache) Stats() MemoryCacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds := make(map[string]int)
	for _, elem := range m.entries {
		kinds[elem.Value.(*memoryEntry).kind]++
	}

	var hitRate float64
	if lookups := m.hits + m.misses; lookups > 0 {
		hitRate = float64(m.hits) / float64(lookups)
	}

	return MemoryCacheStats{
		Size:      m.recency.Len(),
		MaxSize:   m.maxSize,
		Hits:      m.hits,
		Misses:    m.misses,
		HitRate:   hitRate,
		Evictions: m.evictions,
		Expired:   m.expired,
		Kinds:     kinds,
	}
}
