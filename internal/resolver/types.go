package resolver

import (
	"context"
	"fmt"
	"time"

	"tradecmd/internal/dispatch"
	"tradecmd/internal/intent"
	"tradecmd/internal/metrics"
)

// Record 描述一次顶层解析的结果归属：终止层级、该层级的置信度与
// 耗时。每次 ResolveCommand 产生一条，创建后不再修改。
type Record struct {
	ID         string        `json:"id"`
	Tier       metrics.Tier  `json:"tier"`
	Confidence float64       `json:"confidence"`
	Latency    time.Duration `json:"latency"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Error 在上游失败时附带原始文本与终止层级，供调用方决定向用户
// 展示何种回退提示。
type Error struct {
	Text string
	Tier metrics.Tier
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("解析指令 %q 失败(层级 %s): %v", e.Text, e.Tier, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sample 为缓存预热样本。
type Sample struct {
	Text   string
	Intent intent.Intent
}

// ExternalResolver 为权威但昂贵的上游解析回退。
type ExternalResolver interface {
	Resolve(ctx context.Context, text string) (intent.Intent, error)
}

// History 持久化解析历史，实现方为 monitor.Service。可为 nil。
type History interface {
	RecordResolution(ctx context.Context, text string, tier metrics.Tier, it intent.Intent, confidence float64, latency time.Duration)
	RecordError(ctx context.Context, text string, tier metrics.Tier, msg string, cause error)
}

// StatsReport 为 GetStats 的返回内容。
type StatsReport struct {
	Window          time.Duration        `json:"window"`
	Stats           metrics.Stats        `json:"stats"`
	Trend           metrics.Trend        `json:"trend"`
	Suggestions     []string             `json:"suggestions"`
	Pools           []dispatch.PoolStats `json:"pools"`
	InFlight        int                  `json:"in_flight"`
	ExactEntries    int                  `json:"exact_entries"`
	SemanticEntries int                  `json:"semantic_entries"`
}

// Config 聚合解析管线的运行参数。
type Config struct {
	SimilarityThreshold    float64
	MaxCacheSize           int
	CacheTTL               time.Duration
	ExactCacheTTL          time.Duration
	DedupWindow            time.Duration
	MinConfidence          float64
	MaxConcurrentLLM       int
	MaxConcurrentEmbedding int
	StatsWindow            time.Duration
}
