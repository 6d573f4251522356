package metrics

import "time"

// Tier 标识一次解析最终终止的层级。
type Tier string

const (
	TierDeterministic Tier = "deterministic"
	TierExactCache    Tier = "exact_cache"
	TierSemanticCache Tier = "semantic_cache"
	TierExternal      Tier = "external"
)

// Sample 为单次解析的度量样本，写入后不再修改。
type Sample struct {
	Tier      Tier          `json:"tier"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	CostUnits float64       `json:"cost_units"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorSample 记录一次失败的解析。
type ErrorSample struct {
	Tier      Tier      `json:"tier"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats 为滑动窗口内的聚合统计。
type Stats struct {
	Count            int              `json:"count"`
	SuccessRate      float64          `json:"success_rate"`
	ErrorRate        float64          `json:"error_rate"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
	LatencyBuckets   map[string]int   `json:"latency_buckets"`
	TierDistribution map[Tier]float64 `json:"tier_distribution"`
	CostPerRequest   float64          `json:"cost_per_request"`
}

// Trend 比较窗口前后两半的变化幅度（百分比）。样本不足时 Valid 为 false。
type Trend struct {
	Valid             bool    `json:"valid"`
	LatencyChangePct  float64 `json:"latency_change_pct"`
	SuccessChangePct  float64 `json:"success_change_pct"`
	CacheHitChangePct float64 `json:"cache_hit_change_pct"`
	FirstHalfSamples  int     `json:"first_half_samples"`
	SecondHalfSamples int     `json:"second_half_samples"`
}
