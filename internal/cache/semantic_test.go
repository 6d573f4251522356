package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// fakeEmbedder 为每个注册文本返回固定向量，未注册文本返回正交向量。
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding provider down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestSemantic(embedder Embedder, capacity int, ttl time.Duration) *Semantic {
	return NewSemantic(embedder, SemanticOptions{
		Threshold: 0.85,
		Capacity:  capacity,
		TTL:       ttl,
	}, nil)
}

func TestSemantic_ExactTextRoundTrip(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"buy 1 aapl": {1, 0, 0},
	}}
	c := newTestSemantic(emb, 10, time.Hour)
	ctx := context.Background()

	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))

	it, sim, ok := c.Lookup(ctx, "buy 1 aapl")
	if !ok {
		t.Fatalf("expected hit for identical text")
	}
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("similarity = %f, want 1.0", sim)
	}
	if it.Stock.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", it.Stock.Symbol)
	}
}

func TestSemantic_ParaphraseAboveThreshold(t *testing.T) {
	// 两个接近平行的向量，余弦约 0.995。
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"purchase one apple share": {1, 0.1, 0},
		"buy 1 aapl":               {1, 0, 0},
	}}
	c := newTestSemantic(emb, 10, time.Hour)
	ctx := context.Background()

	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))

	it, sim, ok := c.Lookup(ctx, "purchase one apple share")
	if !ok {
		t.Fatalf("expected paraphrase hit, sim=%f", sim)
	}
	if sim < 0.85 || sim >= 1.0 {
		t.Errorf("similarity = %f, want within [0.85, 1)", sim)
	}
	if it.Stock.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", it.Stock.Symbol)
	}

	// 正交向量不得命中。
	if _, _, ok := c.Lookup(ctx, "totally unrelated"); ok {
		t.Errorf("orthogonal input must not hit")
	}
}

func TestSemantic_LRUEviction(t *testing.T) {
	const capacity = 5
	vectors := make(map[string][]float32)
	keys := make([]string, 0, capacity+1)
	for i := 0; i <= capacity; i++ {
		key := fmt.Sprintf("cmd-%d", i)
		vec := make([]float32, capacity+2)
		vec[i] = 1
		vectors[key] = vec
		keys = append(keys, key)
	}

	emb := &fakeEmbedder{vectors: vectors}
	c := newTestSemantic(emb, capacity, time.Hour)
	ctx := context.Background()

	// 填满容量。
	for i := 0; i < capacity; i++ {
		c.Insert(ctx, keys[i], stockIntent("AAPL"))
	}

	// 访问除第一条外的全部条目，使 cmd-0 成为最久未访问者。
	for i := 1; i < capacity; i++ {
		if _, _, ok := c.Lookup(ctx, keys[i]); !ok {
			t.Fatalf("warm lookup for %s missed", keys[i])
		}
	}

	// 插入第 N+1 条触发淘汰。
	c.Insert(ctx, keys[capacity], stockIntent("MSFT"))

	if c.Len() != capacity {
		t.Fatalf("len = %d, want %d", c.Len(), capacity)
	}
	if _, _, ok := c.Lookup(ctx, keys[0]); ok {
		t.Errorf("least recently accessed entry survived eviction")
	}
	for i := 1; i <= capacity; i++ {
		if _, _, ok := c.Lookup(ctx, keys[i]); !ok {
			t.Errorf("recently accessed entry %s was evicted", keys[i])
		}
	}
}

func TestSemantic_TTLExpiry(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"buy 1 aapl": {1, 0, 0},
	}}
	c := newTestSemantic(emb, 10, time.Hour)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))

	now = now.Add(2 * time.Hour)
	if removed := c.EvictExpired(); removed != 1 {
		t.Errorf("EvictExpired removed %d, want 1", removed)
	}
	if _, _, ok := c.Lookup(ctx, "buy 1 aapl"); ok {
		t.Errorf("expired entry still hit")
	}
}

func TestSemantic_EmbeddingFailureDegradesToMiss(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	c := newTestSemantic(emb, 10, time.Hour)
	ctx := context.Background()

	// 写入与查询都必须静默降级，不 panic、不报错。
	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))
	if c.Len() != 0 {
		t.Errorf("failed insert left %d entries", c.Len())
	}
	if _, _, ok := c.Lookup(ctx, "buy 1 aapl"); ok {
		t.Errorf("lookup hit despite embedding failure")
	}
}

func TestSemantic_SameKeyInsertRefreshesAccessMetadata(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"buy 1 aapl": {1, 0, 0},
	}}
	c := newTestSemantic(emb, 10, time.Hour)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))

	later := base.Add(30 * time.Minute)
	c.now = func() time.Time { return later }
	c.Insert(ctx, "buy 1 aapl", stockIntent("AAPL"))

	if c.Len() != 1 {
		t.Fatalf("len = %d, want refreshed single entry", c.Len())
	}
	entry := c.byKey["buy 1 aapl"].Value.(*Entry)
	if !entry.CreatedAt.Equal(later) {
		t.Errorf("CreatedAt = %v, want refresh time %v", entry.CreatedAt, later)
	}
	if !entry.LastAccessedAt.Equal(later) {
		t.Errorf("LastAccessedAt = %v, want refresh time %v", entry.LastAccessedAt, later)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Cosine = %f, want %f", got, tc.want)
			}
		})
	}
}
