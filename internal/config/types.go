package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig 描述向量化调用参数，API Key 与 OpenAI 共用。
type EmbeddingConfig struct {
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResolverConfig 控制指令解析管线的缓存与去重行为。
type ResolverConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MaxCacheSize        int           `mapstructure:"max_cache_size"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	ExactCacheTTL       time.Duration `mapstructure:"exact_cache_ttl"`
	DedupWindow         time.Duration `mapstructure:"dedup_window"`
	MinConfidence       float64       `mapstructure:"min_confidence"`
}

// LimitsConfig 为各类外部调用设置独立的并发上限。
type LimitsConfig struct {
	MaxConcurrentLLM       int `mapstructure:"max_concurrent_llm"`
	MaxConcurrentEmbedding int `mapstructure:"max_concurrent_embedding"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制后台任务节奏。
type SchedulerConfig struct {
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	StatsInterval    time.Duration `mapstructure:"stats_interval"`
	WarmupLimit      int           `mapstructure:"warmup_limit"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Embedding.Model == "" {
		err = multierr.Append(err, errors.New("embedding.model 不能为空"))
	}
	if c.Embedding.Timeout <= 0 {
		err = multierr.Append(err, errors.New("embedding.timeout 必须大于0"))
	}
	if c.Resolver.SimilarityThreshold <= 0 || c.Resolver.SimilarityThreshold > 1 {
		err = multierr.Append(err, errors.New("resolver.similarity_threshold 必须位于(0,1]"))
	}
	if c.Resolver.MaxCacheSize <= 0 {
		err = multierr.Append(err, errors.New("resolver.max_cache_size 必须大于0"))
	}
	if c.Resolver.CacheTTL <= 0 {
		err = multierr.Append(err, errors.New("resolver.cache_ttl 必须大于0"))
	}
	if c.Resolver.ExactCacheTTL <= 0 {
		err = multierr.Append(err, errors.New("resolver.exact_cache_ttl 必须大于0"))
	}
	if c.Resolver.DedupWindow <= 0 {
		err = multierr.Append(err, errors.New("resolver.dedup_window 必须大于0"))
	}
	if c.Resolver.MinConfidence < 0 || c.Resolver.MinConfidence > 1 {
		err = multierr.Append(err, errors.New("resolver.min_confidence 必须位于[0,1]"))
	}
	if c.Limits.MaxConcurrentLLM <= 0 {
		err = multierr.Append(err, errors.New("limits.max_concurrent_llm 必须大于0"))
	}
	if c.Limits.MaxConcurrentEmbedding <= 0 {
		err = multierr.Append(err, errors.New("limits.max_concurrent_embedding 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.EvictionInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.eviction_interval 必须大于0"))
	}
	if c.Scheduler.StatsInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.stats_interval 必须大于0"))
	}
	if c.Scheduler.WarmupLimit < 0 {
		err = multierr.Append(err, errors.New("scheduler.warmup_limit 不能为负"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
