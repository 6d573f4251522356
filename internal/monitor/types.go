package monitor

import (
	"time"

	"tradecmd/internal/intent"
	"tradecmd/internal/metrics"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventResolution EventType = "resolution"
	EventError      EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Tier      string      `json:"tier"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ResolutionPayload 记录一次成功的指令解析。
type ResolutionPayload struct {
	Intent     intent.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	LatencyMs  int64         `json:"latency_ms"`
}

// ErrorPayload 记录一次失败的解析。
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// WarmSample 为缓存预热样本：规范化文本与其历史解析结果。
type WarmSample struct {
	Text   string
	Intent intent.Intent
}

// tierName 把度量层级转成事件存储用的字符串。
func tierName(tier metrics.Tier) string {
	return string(tier)
}
