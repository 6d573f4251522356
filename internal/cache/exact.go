package cache

import (
	"sync"
	"time"

	"tradecmd/internal/intent"
)

// Exact 是规范化文本到已解析意图的哈希缓存，带 TTL 过期。
// 并发安全，读写均为 O(1)。
type Exact struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]exactEntry
	now     func() time.Time
}

type exactEntry struct {
	intent     intent.Intent
	insertedAt time.Time
}

// NewExact 创建精确缓存。ttl 必须为正。
func NewExact(ttl time.Duration) *Exact {
	return &Exact{
		ttl:     ttl,
		entries: make(map[string]exactEntry),
		now:     time.Now,
	}
}

// Get 返回未过期的缓存意图。过期条目在此处顺带清除。
func (c *Exact) Get(key string) (intent.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return intent.Intent{}, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return intent.Intent{}, false
	}
	return e.intent, true
}

// Put 写入缓存，已有条目被覆盖。
func (c *Exact) Put(key string, it intent.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = exactEntry{intent: it, insertedAt: c.now()}
}

// Len 返回当前条目数（含尚未被惰性清除的过期条目）。
func (c *Exact) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空全部条目。
func (c *Exact) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]exactEntry)
}
