package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradecmd/internal/cache"
	"tradecmd/internal/dispatch"
	"tradecmd/internal/intent"
	"tradecmd/internal/metrics"
	"tradecmd/internal/normalize"
	"tradecmd/internal/rules"
)

// 各层级的置信度与成本（以一次上游解析调用为单位1）。精确缓存命中
// 是逐字复用历史结果，置信度为 1；语义缓存以相似度为置信度；上游
// 结果权威但非确定，不标满分。
const (
	exactConfidence    = 1.0
	externalConfidence = 0.9

	costEmbedding = 0.05
	costExternal  = 1.0

	defaultStatsWindow         = time.Hour
	defaultSimilarityThreshold = 0.85
	defaultCacheCapacity       = 1000
	defaultCacheTTL            = 24 * time.Hour
	defaultDedupWindow         = 10 * time.Second
	warmupConcurrency          = 4
)

// Service 是分层指令解析管线：规范化 → 确定性规则 → 精确缓存 →
// 语义缓存 → 去重/限流 → 上游解析 → 双写缓存。前三级零成本零
// 阻塞，未命中只是路由信号；只有上游层可能失败。所有状态都是
// 显式构造的实例，不存在包级单例。
type Service struct {
	cfg    Config
	logger *zap.Logger

	matcher  *rules.Matcher
	exact    *cache.Exact
	semantic *cache.Semantic

	llmPool   *dispatch.Pool
	embedPool *dispatch.Pool
	flights   *dispatch.Flights

	external  ExternalResolver
	collector *metrics.Collector
	history   History
}

// New 构建解析管线。external 与 embedder 为必需依赖；history 可为 nil。
func New(cfg Config, external ExternalResolver, embedder cache.Embedder, history History, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// 直连构造不经过 config.Validate，零值调优参数在这里退回默认，
	// 避免去重窗口或 TTL 静默失效。
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = defaultStatsWindow
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaultSimilarityThreshold
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = defaultCacheCapacity
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.ExactCacheTTL <= 0 {
		cfg.ExactCacheTTL = defaultCacheTTL
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}

	llmPool, err := dispatch.NewPool("llm", cfg.MaxConcurrentLLM)
	if err != nil {
		return nil, err
	}
	embedPool, err := dispatch.NewPool("embedding", cfg.MaxConcurrentEmbedding)
	if err != nil {
		return nil, err
	}

	semantic := cache.NewSemantic(
		pooledEmbedder{pool: embedPool, inner: embedder},
		cache.SemanticOptions{
			Threshold: cfg.SimilarityThreshold,
			Capacity:  cfg.MaxCacheSize,
			TTL:       cfg.CacheTTL,
		},
		logger,
	)

	return &Service{
		cfg:       cfg,
		logger:    logger,
		matcher:   rules.NewMatcher(),
		exact:     cache.NewExact(cfg.ExactCacheTTL),
		semantic:  semantic,
		llmPool:   llmPool,
		embedPool: embedPool,
		flights:   dispatch.NewFlights(llmPool, cfg.DedupWindow),
		external:  external,
		collector: metrics.NewCollector(0, 0),
		history:   history,
	}, nil
}

// ResolveCommand 是管线的唯一入口：把自由文本解析为经过校验的交易
// 意图。无论在哪一层终止，都会产生一条 Record 与一个度量样本。
func (s *Service) ResolveCommand(ctx context.Context, raw string) (intent.Intent, Record, error) {
	start := time.Now()
	cmd := normalize.Normalize(raw)

	// 第一层：确定性规则。命中即终局，哪怕构造出的意图未通过校验
	// 也直接报错——规则命中说明指令形态明确，缺的是参数而不是解释。
	if it, ok := s.matcher.Match(cmd); ok {
		if err := it.Validate(); err != nil {
			return intent.Intent{}, Record{}, s.fail(ctx, cmd, metrics.TierDeterministic, start, 0, err)
		}
		return it, s.finish(ctx, cmd, metrics.TierDeterministic, it, rules.Confidence, start, 0), nil
	}

	// 第二层：精确缓存。
	if it, ok := s.exact.Get(cmd.Canonical); ok {
		return it, s.finish(ctx, cmd, metrics.TierExactCache, it, exactConfidence, start, 0), nil
	}

	// 第三层：语义缓存。向量化失败在缓存内部降级为未命中。命中结果
	// 不回填精确缓存：精确缓存命中按置信度 1 上报，只有逐字复用上游
	// 结果才配得上；相似度命中重复到来时仍以真实相似度上报。
	if it, sim, ok := s.semantic.Lookup(ctx, cmd.Canonical); ok {
		return it, s.finish(ctx, cmd, metrics.TierSemanticCache, it, sim, start, costEmbedding), nil
	}

	// 第四层：合并同键并发请求，经限流调用上游。
	it, err := s.flights.Do(ctx, cmd.Canonical, func(callCtx context.Context) (intent.Intent, error) {
		return s.external.Resolve(callCtx, cmd.Original)
	})
	if err != nil {
		return intent.Intent{}, Record{}, s.fail(ctx, cmd, metrics.TierExternal, start, costExternal, err)
	}

	s.cacheResult(ctx, cmd.Canonical, it)

	return it, s.finish(ctx, cmd, metrics.TierExternal, it, externalConfidence, start, costExternal+costEmbedding), nil
}

// cacheResult 将上游结果双写入精确缓存与语义缓存。语义写入是尽力
// 而为；调用方此刻可能已经取消，但结果对后续请求仍有价值，故脱离
// 取消链执行。
func (s *Service) cacheResult(ctx context.Context, key string, it intent.Intent) {
	s.exact.Put(key, it)
	s.semantic.Insert(context.WithoutCancel(ctx), key, it)
}

func (s *Service) finish(ctx context.Context, cmd normalize.Command, tier metrics.Tier, it intent.Intent, confidence float64, start time.Time, cost float64) Record {
	latency := time.Since(start)

	s.collector.Record(metrics.Sample{
		Tier:      tier,
		Latency:   latency,
		Success:   true,
		CostUnits: cost,
	})
	if s.history != nil {
		s.history.RecordResolution(context.WithoutCancel(ctx), cmd.Canonical, tier, it, confidence, latency)
	}

	s.logger.Debug("指令解析完成",
		zap.String("tier", string(tier)),
		zap.String("intent", it.Describe()),
		zap.Float64("confidence", confidence),
		zap.Duration("latency", latency),
	)

	return Record{
		ID:         uuid.NewString(),
		Tier:       tier,
		Confidence: confidence,
		Latency:    latency,
		Timestamp:  start,
	}
}

func (s *Service) fail(ctx context.Context, cmd normalize.Command, tier metrics.Tier, start time.Time, cost float64, cause error) error {
	latency := time.Since(start)

	s.collector.Record(metrics.Sample{
		Tier:      tier,
		Latency:   latency,
		Success:   false,
		CostUnits: cost,
	})
	s.collector.RecordError(tier, cause.Error())
	if s.history != nil {
		s.history.RecordError(context.WithoutCancel(ctx), cmd.Canonical, tier, "指令解析失败", cause)
	}

	s.logger.Warn("指令解析失败",
		zap.String("tier", string(tier)),
		zap.String("text", cmd.Original),
		zap.Duration("latency", latency),
		zap.Error(cause),
	)

	return &Error{Text: cmd.Original, Tier: tier, Err: cause}
}

// NeedsConfirmation 判断该结果是否低于置信度门槛、需要用户确认后
// 再执行。策略检查属于调用方，管线自身不做拦截。
func (s *Service) NeedsConfirmation(rec Record) bool {
	return rec.Confidence < s.cfg.MinConfidence
}

// GetStats 汇总窗口统计、趋势、调优建议与各调用池的瞬时状态。
func (s *Service) GetStats() StatsReport {
	return StatsReport{
		Window:          s.cfg.StatsWindow,
		Stats:           s.collector.Snapshot(s.cfg.StatsWindow),
		Trend:           s.collector.Trend(s.cfg.StatsWindow),
		Suggestions:     s.collector.Suggestions(s.cfg.StatsWindow),
		Pools:           []dispatch.PoolStats{s.llmPool.Stats(), s.embedPool.Stats()},
		InFlight:        s.flights.InFlight(),
		ExactEntries:    s.exact.Len(),
		SemanticEntries: s.semantic.Len(),
	}
}

// ClearCache 清空两级缓存。管理操作，不在热路径上。
func (s *Service) ClearCache() {
	s.exact.Clear()
	s.semantic.Clear()
	s.logger.Info("缓存已清空")
}

// WarmCache 用历史样本预热两级缓存。语义写入涉及向量化调用，按
// 固定并发扇出。
func (s *Service) WarmCache(ctx context.Context, samples []Sample) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	for _, sample := range samples {
		sample := sample
		g.Go(func() error {
			if err := sample.Intent.Validate(); err != nil {
				s.logger.Warn("跳过非法预热样本", zap.String("text", sample.Text), zap.Error(err))
				return nil
			}
			key := normalize.Normalize(sample.Text).Canonical
			s.exact.Put(key, sample.Intent)
			s.semantic.Insert(gctx, key, sample.Intent)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("缓存预热完成",
		zap.Int("samples", len(samples)),
		zap.Int("semantic_entries", s.semantic.Len()),
	)
	return nil
}

// EvictExpired 触发一次语义缓存的过期清理，返回清除数量。
func (s *Service) EvictExpired() int {
	return s.semantic.EvictExpired()
}

// pooledEmbedder 让语义缓存的向量化调用经过独立的并发池，避免
// 向量化洪峰挤占大模型解析的槽位。
type pooledEmbedder struct {
	pool  *dispatch.Pool
	inner cache.Embedder
}

func (p pooledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.pool.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.pool.Release()
	return p.inner.Embed(ctx, text)
}
