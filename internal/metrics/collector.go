package metrics

import (
	"fmt"
	"sync"
	"time"
)

const (
	defaultSampleCapacity = 10000
	defaultErrorCapacity  = 1000
)

// 建议规则比对的目标层级分布。
var targetDistribution = map[Tier]float64{
	TierDeterministic: 0.6,
	TierExactCache:    0.15,
	TierSemanticCache: 0.15,
	TierExternal:      0.1,
}

// Collector 以有界环形缓冲记录每次解析的度量样本，最旧的先被覆盖。
// 只做记录与聚合，永不阻塞解析管线：Record 是一次短临界区内的 O(1)
// 写入。
type Collector struct {
	mu sync.Mutex

	samples    []Sample
	sampleNext int
	sampleLen  int

	errors    []ErrorSample
	errorNext int
	errorLen  int

	now func() time.Time
}

// NewCollector 创建收集器。容量非正时使用默认值。
func NewCollector(sampleCapacity, errorCapacity int) *Collector {
	if sampleCapacity <= 0 {
		sampleCapacity = defaultSampleCapacity
	}
	if errorCapacity <= 0 {
		errorCapacity = defaultErrorCapacity
	}
	return &Collector{
		samples: make([]Sample, sampleCapacity),
		errors:  make([]ErrorSample, errorCapacity),
		now:     time.Now,
	}
}

// Record 追加一个样本。
func (c *Collector) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples[c.sampleNext] = s
	c.sampleNext = (c.sampleNext + 1) % len(c.samples)
	if c.sampleLen < len(c.samples) {
		c.sampleLen++
	}
}

// RecordError 追加一条失败记录。
func (c *Collector) RecordError(tier Tier, message string) {
	e := ErrorSample{Tier: tier, Message: message, Timestamp: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.errors[c.errorNext] = e
	c.errorNext = (c.errorNext + 1) % len(c.errors)
	if c.errorLen < len(c.errors) {
		c.errorLen++
	}
}

// windowSamples 返回窗口内的样本，按时间先后排序。window 非正时取全部。
func (c *Collector) windowSamples(window time.Duration) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = c.now().Add(-window)
	}

	out := make([]Sample, 0, c.sampleLen)
	// 从最旧的样本起顺序读出。
	start := c.sampleNext - c.sampleLen
	for i := 0; i < c.sampleLen; i++ {
		idx := (start + i + len(c.samples)) % len(c.samples)
		s := c.samples[idx]
		if !cutoff.IsZero() && s.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Snapshot 聚合窗口内的统计指标。
func (c *Collector) Snapshot(window time.Duration) Stats {
	return aggregate(c.windowSamples(window))
}

func aggregate(samples []Sample) Stats {
	stats := Stats{
		LatencyBuckets:   map[string]int{},
		TierDistribution: map[Tier]float64{},
	}
	if len(samples) == 0 {
		return stats
	}

	var (
		latencySum time.Duration
		costSum    float64
		successes  int
		cacheHits  int
		tierCounts = map[Tier]int{}
	)
	for _, s := range samples {
		latencySum += s.Latency
		costSum += s.CostUnits
		if s.Success {
			successes++
		}
		if s.Tier == TierExactCache || s.Tier == TierSemanticCache {
			cacheHits++
		}
		tierCounts[s.Tier]++
		stats.LatencyBuckets[latencyBucket(s.Latency)]++
	}

	n := float64(len(samples))
	stats.Count = len(samples)
	stats.SuccessRate = float64(successes) / n
	stats.ErrorRate = 1 - stats.SuccessRate
	stats.CacheHitRate = float64(cacheHits) / n
	stats.AverageLatencyMs = float64(latencySum.Milliseconds()) / n
	stats.CostPerRequest = costSum / n
	for tier, count := range tierCounts {
		stats.TierDistribution[tier] = float64(count) / n
	}
	return stats
}

func latencyBucket(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < 10*time.Millisecond:
		return "<10ms"
	case d < 100*time.Millisecond:
		return "<100ms"
	case d < 500*time.Millisecond:
		return "<500ms"
	case d < 2*time.Second:
		return "<2s"
	default:
		return ">=2s"
	}
}

// Trend 比较窗口前后两半的变化。任一半不足两个样本时视为无效。
func (c *Collector) Trend(window time.Duration) Trend {
	samples := c.windowSamples(window)
	if len(samples) < 4 {
		return Trend{}
	}

	mid := len(samples) / 2
	first := aggregate(samples[:mid])
	second := aggregate(samples[mid:])

	return Trend{
		Valid:             true,
		LatencyChangePct:  pctChange(first.AverageLatencyMs, second.AverageLatencyMs),
		SuccessChangePct:  pctChange(first.SuccessRate, second.SuccessRate),
		CacheHitChangePct: pctChange(first.CacheHitRate, second.CacheHitRate),
		FirstHalfSamples:  mid,
		SecondHalfSamples: len(samples) - mid,
	}
}

func pctChange(before, after float64) float64 {
	if before == 0 {
		if after == 0 {
			return 0
		}
		return 100
	}
	return (after - before) / before * 100
}

// Suggestions 基于窗口统计产出规则化的调优建议。
func (c *Collector) Suggestions(window time.Duration) []string {
	stats := c.Snapshot(window)
	if stats.Count < 20 {
		return nil
	}

	var out []string

	if stats.CacheHitRate < 0.2 {
		out = append(out, fmt.Sprintf(
			"缓存命中率偏低(%.0f%%): 可放宽语义相似度阈值或补充确定性规则", stats.CacheHitRate*100))
	}
	if external := stats.TierDistribution[TierExternal]; external > targetDistribution[TierExternal]*2 {
		out = append(out, fmt.Sprintf(
			"外部解析占比 %.0f%% 超出目标 %.0f%%: 成本偏高, 建议扩充规则或预热缓存",
			external*100, targetDistribution[TierExternal]*100))
	}
	if det := stats.TierDistribution[TierDeterministic]; det < targetDistribution[TierDeterministic]/2 {
		out = append(out, fmt.Sprintf(
			"确定性规则占比 %.0f%% 远低于目标 %.0f%%: 建议根据近期指令形态补充规则",
			det*100, targetDistribution[TierDeterministic]*100))
	}
	if stats.ErrorRate > 0.1 {
		out = append(out, fmt.Sprintf("错误率偏高(%.0f%%): 请检查上游服务与指令质量", stats.ErrorRate*100))
	}
	if stats.AverageLatencyMs > 1000 {
		out = append(out, fmt.Sprintf("平均时延 %.0fms 偏高: 检查并发上限与上游响应", stats.AverageLatencyMs))
	}

	return out
}

// RecentErrors 返回最近的失败记录，最新的在前。
func (c *Collector) RecentErrors(limit int) []ErrorSample {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > c.errorLen {
		limit = c.errorLen
	}
	out := make([]ErrorSample, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (c.errorNext - i + len(c.errors)) % len(c.errors)
		out = append(out, c.errors[idx])
	}
	return out
}
