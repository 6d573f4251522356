package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tradecmd/internal/config"
	"tradecmd/internal/intent"
)

// Client 封装 OpenAI 调用逻辑：权威的指令解析回退，以及语义缓存
// 依赖的文本向量化。对核心管线而言两者均为不透明的外部调用。
type Client struct {
	cfg      config.OpenAIConfig
	embedCfg config.EmbeddingConfig
	logger   *zap.Logger
	sdk      *openai.Client
}

// NewClient 使用给定配置创建 LLM 客户端。
func NewClient(cfg config.OpenAIConfig, embedCfg config.EmbeddingConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}
	clientCfg.HTTPClient = httpClient
	client := openai.NewClientWithConfig(clientCfg)

	return &Client{
		cfg:      cfg,
		embedCfg: embedCfg,
		logger:   logger,
		sdk:      client,
	}, nil
}

// resolveEnvelope 为模型输出的信封结构。
type resolveEnvelope struct {
	Ambiguous bool           `json:"ambiguous"`
	Question  string         `json:"question"`
	Intent    *intent.Intent `json:"intent"`
}

// Resolve 调用大模型把自由文本解析为交易意图。不在内部重试——重试
// 策略属于调用方。
func (c *Client) Resolve(ctx context.Context, text string) (intent.Intent, error) {
	if c.cfg.Model == "" {
		return intent.Intent{}, errors.New("openai model 不能为空")
	}

	prompt, err := BuildPrompt(text)
	if err != nil {
		return intent.Intent{}, err
	}

	start := time.Now()
	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		classified := classifyCallError(err)
		c.logger.Error("调用OpenAI解析指令失败",
			zap.Error(classified),
			zap.Duration("elapsed", time.Since(start)),
		)
		return intent.Intent{}, classified
	}

	if len(response.Choices) == 0 {
		return intent.Intent{}, ErrEmptyResponse
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return intent.Intent{}, ErrEmptyResponse
	}

	it, err := parseEnvelope(rawContent)
	if err != nil {
		c.logger.Error("解析模型输出失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return intent.Intent{}, err
	}

	c.logger.Info("上游指令解析成功",
		zap.String("intent", it.Describe()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return it, nil
}

// Embed 调用向量化接口。语义缓存对其失败做降级处理。
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedCfg.Model == "" {
		return nil, errors.New("embedding model 不能为空")
	}
	if c.embedCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.embedCfg.Timeout)
		defer cancel()
	}

	resp, err := c.sdk.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedCfg.Model),
		Input: []string{text},
	})
	if err != nil {
		return nil, classifyCallError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}

	return resp.Data[0].Embedding, nil
}

func parseEnvelope(content string) (intent.Intent, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return intent.Intent{}, &MalformedResponseError{Raw: content, Reason: err}
	}

	var envelope resolveEnvelope
	if err = json.Unmarshal(jsonPayload, &envelope); err != nil {
		return intent.Intent{}, &MalformedResponseError{Raw: content, Reason: fmt.Errorf("解析JSON失败: %w", err)}
	}

	if envelope.Ambiguous {
		return intent.Intent{}, &AmbiguousError{Question: envelope.Question}
	}
	if envelope.Intent == nil {
		return intent.Intent{}, &MalformedResponseError{Raw: content, Reason: errors.New("缺少 intent 字段")}
	}

	it := *envelope.Intent
	it.NormalizeEnums()
	if err := it.Validate(); err != nil {
		return intent.Intent{}, &MalformedResponseError{Raw: content, Reason: err}
	}

	return it, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
