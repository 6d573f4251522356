package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"tradecmd/internal/config"
	"tradecmd/internal/intent"
	"tradecmd/internal/llm"
	"tradecmd/internal/monitor"
	"tradecmd/internal/resolver"
	"tradecmd/internal/store"
)

// buildService 按配置装配解析管线。所有依赖显式注入，便于独立测试
// 与多实例并存。
func buildService(cfg *config.Config, logger *zap.Logger, store *store.Store) (*resolver.Service, *monitor.Service, error) {
	history, err := monitor.NewService(store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	client, err := llm.NewClient(cfg.OpenAI, cfg.Embedding, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化LLM客户端失败: %w", err)
	}

	svc, err := resolver.New(resolver.Config{
		SimilarityThreshold:    cfg.Resolver.SimilarityThreshold,
		MaxCacheSize:           cfg.Resolver.MaxCacheSize,
		CacheTTL:               cfg.Resolver.CacheTTL,
		ExactCacheTTL:          cfg.Resolver.ExactCacheTTL,
		DedupWindow:            cfg.Resolver.DedupWindow,
		MinConfidence:          cfg.Resolver.MinConfidence,
		MaxConcurrentLLM:       cfg.Limits.MaxConcurrentLLM,
		MaxConcurrentEmbedding: cfg.Limits.MaxConcurrentEmbedding,
	}, client, client, history, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化解析管线失败: %w", err)
	}

	return svc, history, nil
}

// printer 将解析结果以 JSON 逐行写出。多条指令并发解析，输出用锁
// 串行化。
type printer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	svc    *resolver.Service
	logger *zap.Logger
}

func newPrinter(w io.Writer, svc *resolver.Service, logger *zap.Logger) *printer {
	return &printer{
		enc:    json.NewEncoder(w),
		svc:    svc,
		logger: logger,
	}
}

// resolveOutput 为单条指令的输出载体。
type resolveOutput struct {
	Input             string           `json:"input"`
	Intent            *intent.Intent   `json:"intent,omitempty"`
	Tier              string           `json:"tier,omitempty"`
	Confidence        float64          `json:"confidence,omitempty"`
	LatencyMs         int64            `json:"latency_ms"`
	NeedsConfirmation bool             `json:"needs_confirmation,omitempty"`
	Error             *resolveErrorOut `json:"error,omitempty"`
}

type resolveErrorOut struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Question string `json:"question,omitempty"`
}

func (p *printer) resolve(ctx context.Context, line string) {
	it, rec, err := p.svc.ResolveCommand(ctx, line)

	out := resolveOutput{Input: line, LatencyMs: rec.Latency.Milliseconds()}
	if err != nil {
		out.Error = classifyError(err)
	} else {
		out.Intent = &it
		out.Tier = string(rec.Tier)
		out.Confidence = rec.Confidence
		out.NeedsConfirmation = p.svc.NeedsConfirmation(rec)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if encodeErr := p.enc.Encode(out); encodeErr != nil {
		p.logger.Warn("写出解析结果失败", zap.Error(encodeErr))
	}
}

// classifyError 把错误分类映射到面向用户的错误种类：歧义与校验失败
// 应提示用户补充或修正，而不是展示通用错误。
func classifyError(err error) *resolveErrorOut {
	var ambiguous *llm.AmbiguousError
	if errors.As(err, &ambiguous) {
		return &resolveErrorOut{Kind: "ambiguous", Message: err.Error(), Question: ambiguous.Question}
	}

	var validation *intent.ValidationError
	if errors.As(err, &validation) {
		return &resolveErrorOut{Kind: "validation", Message: err.Error()}
	}

	if errors.Is(err, llm.ErrTimeout) {
		return &resolveErrorOut{Kind: "timeout", Message: err.Error()}
	}

	var malformed *llm.MalformedResponseError
	if errors.As(err, &malformed) {
		return &resolveErrorOut{Kind: "malformed_response", Message: err.Error()}
	}

	return &resolveErrorOut{Kind: "provider", Message: err.Error()}
}
