package cache

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecmd/internal/intent"
)

// Embedder 将文本转换为定长向量。实现方为外部向量化服务。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Semantic 识别历史指令的同义改写：以向量余弦相似度匹配缓存条目，
// 超过阈值即命中，免去一次昂贵的上游解析。容量受限，LRU 淘汰，
// 条目按创建时间 TTL 过期。
//
// 向量化本身是外部调用且可能失败；失败一律降级为未命中，绝不向上
// 传播。条目集合与 LRU 顺序由单把锁保护——每次命中都要改写访问
// 顺序，读写锁在这里没有意义。
type Semantic struct {
	embedder  Embedder
	threshold float64
	capacity  int
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	byKey map[string]*list.Element
	order *list.List // 队首为最近访问
	now   func() time.Time
}

// Entry 为语义缓存条目，生命周期由 Semantic 独占管理。
type Entry struct {
	Key            string
	Vector         []float32
	Intent         intent.Intent
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

// SemanticOptions 聚合 Semantic 的构造参数。
type SemanticOptions struct {
	Threshold float64
	Capacity  int
	TTL       time.Duration
}

// NewSemantic 创建语义缓存。logger 为 nil 时使用空实现。
func NewSemantic(embedder Embedder, opts SemanticOptions, logger *zap.Logger) *Semantic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{
		embedder:  embedder,
		threshold: opts.Threshold,
		capacity:  opts.Capacity,
		ttl:       opts.TTL,
		logger:    logger,
		byKey:     make(map[string]*list.Element),
		order:     list.New(),
		now:       time.Now,
	}
}

// Lookup 为输入计算向量并在存活条目中寻找相似度最高者。仅当相似度
// 不低于阈值才算命中；并列时取最近访问的条目（扫描顺序即 LRU 顺序，
// 先到者自然胜出）。命中会刷新条目的访问信息并前移其 LRU 位置。
func (c *Semantic) Lookup(ctx context.Context, key string) (intent.Intent, float64, bool) {
	vec, err := c.embedder.Embed(ctx, key)
	if err != nil {
		c.logger.Debug("向量化失败, 语义缓存降级为未命中", zap.Error(err))
		return intent.Intent{}, 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()

	var (
		best    *list.Element
		bestSim float64
	)
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry)
		if sim := Cosine(vec, entry.Vector); sim > bestSim {
			best = el
			bestSim = sim
		}
	}

	if best == nil || bestSim < c.threshold {
		return intent.Intent{}, 0, false
	}

	entry := best.Value.(*Entry)
	entry.LastAccessedAt = c.now()
	entry.AccessCount++
	c.order.MoveToFront(best)

	return entry.Intent, bestSim, true
}

// Insert 为已解析的指令写入缓存。容量已满时先淘汰一个最久未访问的
// 条目。同键重复写入视为刷新。向量化失败则静默放弃。
func (c *Semantic) Insert(ctx context.Context, key string, it intent.Intent) {
	vec, err := c.embedder.Embed(ctx, key)
	if err != nil {
		c.logger.Debug("向量化失败, 放弃写入语义缓存", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		entry := el.Value.(*Entry)
		now := c.now()
		entry.Vector = vec
		entry.Intent = it
		entry.CreatedAt = now
		entry.LastAccessedAt = now
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictLRULocked()
	}

	now := c.now()
	entry := &Entry{
		Key:            key,
		Vector:         vec,
		Intent:         it,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	c.byKey[key] = c.order.PushFront(entry)
}

// EvictExpired 清除全部 TTL 过期条目，返回清除数量。由上层定时调用，
// Lookup 也会顺带执行。
func (c *Semantic) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked()
}

func (c *Semantic) evictExpiredLocked() int {
	removed := 0
	now := c.now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*Entry)
		if now.Sub(entry.CreatedAt) > c.ttl {
			c.order.Remove(el)
			delete(c.byKey, entry.Key)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Semantic) evictLRULocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*Entry)
	c.order.Remove(back)
	delete(c.byKey, entry.Key)
}

// Len 返回当前条目数。
func (c *Semantic) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear 清空全部条目。
func (c *Semantic) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string]*list.Element)
	c.order.Init()
}

// Cosine 计算两向量的余弦相似度。长度不一致或任一向量模为零时返回 0。
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
