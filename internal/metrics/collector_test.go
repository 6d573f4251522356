package metrics

import (
	"math"
	"strings"
	"testing"
	"time"
)

func record(c *Collector, tier Tier, latency time.Duration, success bool, cost float64, ts time.Time) {
	c.Record(Sample{Tier: tier, Latency: latency, Success: success, CostUnits: cost, Timestamp: ts})
}

func TestSnapshot_Aggregates(t *testing.T) {
	c := NewCollector(100, 10)
	base := time.Now()
	c.now = func() time.Time { return base }

	record(c, TierDeterministic, 500*time.Microsecond, true, 0, base.Add(-time.Minute))
	record(c, TierExactCache, 2*time.Millisecond, true, 0, base.Add(-time.Minute))
	record(c, TierSemanticCache, 80*time.Millisecond, true, 0.05, base.Add(-time.Minute))
	record(c, TierExternal, 1200*time.Millisecond, true, 1.05, base.Add(-time.Minute))
	record(c, TierExternal, 800*time.Millisecond, false, 1, base.Add(-time.Minute))

	stats := c.Snapshot(time.Hour)

	if stats.Count != 5 {
		t.Fatalf("count = %d, want 5", stats.Count)
	}
	if math.Abs(stats.SuccessRate-0.8) > 1e-9 {
		t.Errorf("success rate = %f, want 0.8", stats.SuccessRate)
	}
	if math.Abs(stats.CacheHitRate-0.4) > 1e-9 {
		t.Errorf("cache hit rate = %f, want 0.4", stats.CacheHitRate)
	}
	if math.Abs(stats.TierDistribution[TierExternal]-0.4) > 1e-9 {
		t.Errorf("external share = %f, want 0.4", stats.TierDistribution[TierExternal])
	}
	if math.Abs(stats.CostPerRequest-0.42) > 1e-9 {
		t.Errorf("cost per request = %f, want 0.42", stats.CostPerRequest)
	}
	if stats.LatencyBuckets["<1ms"] != 1 || stats.LatencyBuckets["<2s"] != 2 {
		t.Errorf("unexpected latency buckets: %v", stats.LatencyBuckets)
	}
}

func TestSnapshot_WindowFiltersOldSamples(t *testing.T) {
	c := NewCollector(100, 10)
	base := time.Now()
	c.now = func() time.Time { return base }

	record(c, TierExternal, time.Second, true, 1, base.Add(-2*time.Hour))
	record(c, TierDeterministic, time.Millisecond, true, 0, base.Add(-time.Minute))

	stats := c.Snapshot(time.Hour)
	if stats.Count != 1 {
		t.Errorf("count = %d, want 1 (old sample filtered)", stats.Count)
	}
}

func TestRingBuffer_OverwritesOldest(t *testing.T) {
	c := NewCollector(3, 2)
	base := time.Now()
	c.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		record(c, TierDeterministic, time.Duration(i)*time.Millisecond, true, 0, base)
	}

	stats := c.Snapshot(0)
	if stats.Count != 3 {
		t.Errorf("count = %d, want capacity 3", stats.Count)
	}

	for i := 0; i < 4; i++ {
		c.RecordError(TierExternal, "boom")
	}
	if got := len(c.RecentErrors(10)); got != 2 {
		t.Errorf("recent errors = %d, want capacity 2", got)
	}
}

func TestTrend_ComparesHalves(t *testing.T) {
	c := NewCollector(100, 10)
	base := time.Now()
	c.now = func() time.Time { return base }

	// 前半段慢，后半段快一半。
	for i := 0; i < 4; i++ {
		record(c, TierExternal, 1000*time.Millisecond, true, 1, base.Add(-10*time.Minute))
	}
	for i := 0; i < 4; i++ {
		record(c, TierExactCache, 500*time.Millisecond, true, 0, base.Add(-5*time.Minute))
	}

	trend := c.Trend(time.Hour)
	if !trend.Valid {
		t.Fatalf("trend invalid with %d samples", 8)
	}
	if math.Abs(trend.LatencyChangePct-(-50)) > 1e-9 {
		t.Errorf("latency change = %f%%, want -50%%", trend.LatencyChangePct)
	}
	if trend.CacheHitChangePct != 100 {
		t.Errorf("cache hit change = %f%%, want 100%%", trend.CacheHitChangePct)
	}
}

func TestTrend_TooFewSamples(t *testing.T) {
	c := NewCollector(100, 10)
	record(c, TierExternal, time.Second, true, 1, time.Now())
	if trend := c.Trend(time.Hour); trend.Valid {
		t.Errorf("trend should be invalid with a single sample")
	}
}

func TestSuggestions_FlagsExternalHeavyWorkload(t *testing.T) {
	c := NewCollector(1000, 10)
	base := time.Now()
	c.now = func() time.Time { return base }

	// 全部流量打到外部解析：命中率 0，外部占比 100%。
	for i := 0; i < 50; i++ {
		record(c, TierExternal, 1500*time.Millisecond, true, 1.05, base)
	}

	suggestions := c.Suggestions(time.Hour)
	if len(suggestions) == 0 {
		t.Fatalf("expected suggestions for external-heavy workload")
	}
	joined := strings.Join(suggestions, "\n")
	for _, want := range []string{"缓存命中率", "外部解析占比", "确定性规则占比"} {
		if !strings.Contains(joined, want) {
			t.Errorf("suggestions missing %q: %v", want, suggestions)
		}
	}
}

func TestSuggestions_QuietWhenHealthy(t *testing.T) {
	c := NewCollector(1000, 10)
	base := time.Now()
	c.now = func() time.Time { return base }

	// 接近目标分布的健康流量。
	for i := 0; i < 60; i++ {
		record(c, TierDeterministic, time.Millisecond, true, 0, base)
	}
	for i := 0; i < 30; i++ {
		record(c, TierExactCache, 2*time.Millisecond, true, 0, base)
	}
	for i := 0; i < 10; i++ {
		record(c, TierExternal, 900*time.Millisecond, true, 1.05, base)
	}

	if suggestions := c.Suggestions(time.Hour); len(suggestions) != 0 {
		t.Errorf("healthy workload produced suggestions: %v", suggestions)
	}
}
