package imagefetch

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/gregjones/httpcache"
)

// DefaultCacheBytes 缓存默认容量
const DefaultCacheBytes int64 = 64 << 20

var _ httpcache.Cache = (*boundedCache)(nil)

// boundedCache 按字节数限容的 LRU，实现 httpcache.Cache。
// 超过容量的单个响应不缓存。
type boundedCache struct {
	mu       sync.Mutex
	lru      *lru.Cache
	size     int64
	maxBytes int64
}

func newBoundedCache(maxBytes int64) *boundedCache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	c := &boundedCache{lru: lru.New(0), maxBytes: maxBytes}
	c.lru.OnEvicted = func(_ lru.Key, value interface{}) {
		c.size -= int64(len(value.([]byte)))
	}
	return c
}

// Get 读取缓存的响应
func (c *boundedCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set 写入响应，必要时淘汰最久未用的条目
func (c *boundedCache) Set(key string, resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 先移除旧值，size 由 OnEvicted 扣减
	c.lru.Remove(key)
	if int64(len(resp)) > c.maxBytes {
		return
	}

	c.lru.Add(key, resp)
	c.size += int64(len(resp))
	for c.size > c.maxBytes {
		c.lru.RemoveOldest()
	}
}

// Delete 删除缓存条目
func (c *boundedCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Size 当前缓存占用字节数
func (c *boundedCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len 当前缓存条目数
func (c *boundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
