package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradecmd/internal/config"
	"tradecmd/internal/monitor"
	"tradecmd/internal/resolver"
	"tradecmd/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期：构建解析管线、预热缓存、
// 运行标准输入循环与后台定时任务。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 阻塞运行直至收到退出信号或标准输入关闭。每行输入视为一条
// 指令，解析结果以 JSON 逐行输出；解析彼此独立并发执行。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("指令解析服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("model", a.cfg.OpenAI.Model),
		zap.Float64("similarity_threshold", a.cfg.Resolver.SimilarityThreshold),
	)

	svc, history, err := buildService(a.cfg, a.logger, a.store)
	if err != nil {
		return err
	}

	if err := a.warm(ctx, svc, history); err != nil {
		a.logger.Warn("缓存预热失败", zap.Error(err))
	}

	evictTicker := time.NewTicker(a.cfg.Scheduler.EvictionInterval)
	defer evictTicker.Stop()
	statsTicker := time.NewTicker(a.cfg.Scheduler.StatsInterval)
	defer statsTicker.Stop()

	lines := readLines(ctx, os.Stdin)
	printer := newPrinter(os.Stdout, svc, a.logger)

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-evictTicker.C:
			if removed := svc.EvictExpired(); removed > 0 {
				a.logger.Info("语义缓存过期清理完成", zap.Int("removed", removed))
			}
		case <-statsTicker.C:
			a.logStats(svc)
		case line, ok := <-lines:
			if !ok {
				a.logger.Info("输入已关闭，正在停止")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			go printer.resolve(ctx, line)
		}
	}
}

func (a *App) warm(ctx context.Context, svc *resolver.Service, history *monitor.Service) error {
	if a.cfg.Scheduler.WarmupLimit == 0 {
		return nil
	}

	warmSamples, err := history.ListWarmSamples(ctx, a.cfg.Scheduler.WarmupLimit)
	if err != nil {
		return err
	}
	if len(warmSamples) == 0 {
		return nil
	}

	samples := make([]resolver.Sample, 0, len(warmSamples))
	for _, ws := range warmSamples {
		samples = append(samples, resolver.Sample{Text: ws.Text, Intent: ws.Intent})
	}
	return svc.WarmCache(ctx, samples)
}

func (a *App) logStats(svc *resolver.Service) {
	report := svc.GetStats()
	a.logger.Info("解析统计",
		zap.Int("count", report.Stats.Count),
		zap.Float64("success_rate", report.Stats.SuccessRate),
		zap.Float64("cache_hit_rate", report.Stats.CacheHitRate),
		zap.Float64("avg_latency_ms", report.Stats.AverageLatencyMs),
		zap.Int("exact_entries", report.ExactEntries),
		zap.Int("semantic_entries", report.SemanticEntries),
		zap.Int("in_flight", report.InFlight),
		zap.Strings("suggestions", report.Suggestions),
	)
}

// readLines 把标准输入逐行送入通道，输入关闭时关闭通道。
func readLines(ctx context.Context, r *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
